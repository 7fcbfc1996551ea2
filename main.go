package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ammiranda/orgtree/cache"
	"github.com/ammiranda/orgtree/config"
	"github.com/ammiranda/orgtree/handlers"
	"github.com/ammiranda/orgtree/hierarchy"
	"github.com/ammiranda/orgtree/internal/logging"
	"github.com/ammiranda/orgtree/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := logging.New(config.Development, "info", nil)

	cfgProvider, err := config.Load(ctx)
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	treeCfg, err := config.GetTreeConfig(ctx, cfgProvider)
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to read tree configuration")
	}
	log := logging.New(cfgProvider.GetEnvironment(), treeCfg.LogLevel, nil)

	repo, err := repository.Open(ctx, cfgProvider, treeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open repository")
	}
	defer repo.Cleanup(context.Background())

	if err := cache.Initialize(ctx, treeCfg.CacheTTL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}

	svc, err := hierarchy.NewService(repo, hierarchy.Kind(treeCfg.Strategy),
		hierarchy.Options{MaxNameLength: treeCfg.MaxNameLength}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create tree service")
	}

	if cfgProvider.GetEnvironment() != config.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(log))
	handlers.NewTreeHandler(svc).Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(ctx, log, &http.Server{Addr: ":" + treeCfg.Port, Handler: r})
}

// serve runs srv until ctx is cancelled, then drains in-flight requests
func serve(ctx context.Context, log zerolog.Logger, srv *http.Server) {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}
}
