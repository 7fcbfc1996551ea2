package main

import (
	"context"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/ammiranda/orgtree/cache"
	"github.com/ammiranda/orgtree/config"
	"github.com/ammiranda/orgtree/hierarchy"
	"github.com/ammiranda/orgtree/internal/lambda"
	"github.com/ammiranda/orgtree/internal/logging"
	"github.com/ammiranda/orgtree/repository"
)

func main() {
	ctx := context.Background()
	boot := logging.New(config.Production, "info", nil)

	cfgProvider, err := config.Load(ctx)
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	treeCfg, err := config.GetTreeConfig(ctx, cfgProvider)
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to read tree configuration")
	}
	// console output is unreadable in CloudWatch
	log := logging.New(config.Production, treeCfg.LogLevel, nil)

	repo, err := repository.Open(ctx, cfgProvider, treeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open repository")
	}
	if err := cache.Initialize(ctx, treeCfg.CacheTTL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}

	svc, err := hierarchy.NewService(repo, hierarchy.Kind(treeCfg.Strategy),
		hierarchy.Options{MaxNameLength: treeCfg.MaxNameLength}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create tree service")
	}

	awslambda.Start(lambda.NewHandler(svc, log).Handle)
}
