// Package lambda serves the tree API from API Gateway proxy events.
package lambda

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ammiranda/orgtree/cache"
	"github.com/ammiranda/orgtree/handlers"
	"github.com/ammiranda/orgtree/hierarchy"
	"github.com/ammiranda/orgtree/models"
)

type response = events.APIGatewayProxyResponse

// Handler represents the Lambda handler with its dependencies
type Handler struct {
	svc *hierarchy.Service
	log zerolog.Logger
}

// NewHandler creates a new Handler on the given service
func NewHandler(svc *hierarchy.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: logger}
}

// Handle routes an API Gateway event to the matching tree operation
func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (response, error) {
	requestID := request.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := h.log.With().Str("request_id", requestID).Logger()
	ctx = log.WithContext(ctx)

	resp := h.route(ctx, request)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers["Content-Type"] = "application/json"
	resp.Headers["X-Request-ID"] = requestID

	log.Info().
		Str("method", request.HTTPMethod).
		Str("path", request.Path).
		Int("status", resp.StatusCode).
		Msg("request")
	return resp, nil
}

func (h *Handler) route(ctx context.Context, request events.APIGatewayProxyRequest) response {
	parts := strings.Split(strings.Trim(request.Path, "/"), "/")
	method := request.HTTPMethod

	switch {
	case len(parts) == 2 && parts[0] == "api" && parts[1] == "tree" && method == http.MethodGet:
		return h.getTree(ctx)
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "tree" && parts[2] == "verify" && method == http.MethodGet:
		if err := h.svc.Verify(ctx); err != nil {
			return h.fail(ctx, err)
		}
		return jsonResponse(http.StatusOK, map[string]any{"status": "ok", "strategy": h.svc.Kind()})
	case len(parts) == 2 && parts[0] == "api" && parts[1] == "nodes" && method == http.MethodPost:
		return h.createNode(ctx, request.Body)
	case len(parts) >= 3 && parts[0] == "api" && parts[1] == "nodes":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || id <= 0 {
			return errorResponse(http.StatusBadRequest, "invalid id")
		}
		return h.routeNode(ctx, method, id, parts[3:], request.Body)
	}
	return errorResponse(http.StatusNotFound, "not found")
}

func (h *Handler) routeNode(ctx context.Context, method string, id int64, rest []string, body string) response {
	switch {
	case len(rest) == 0 && method == http.MethodGet:
		node, err := h.svc.Get(ctx, id)
		if err != nil {
			return h.fail(ctx, err)
		}
		return jsonResponse(http.StatusOK, models.NewNodeResponse(node))
	case len(rest) == 0 && method == http.MethodPut:
		var req models.UpdateNodeRequest
		if resp, ok := decode(body, &req, req.Validate); !ok {
			return resp
		}
		node, err := h.svc.Rename(ctx, id, req.Name)
		if err != nil {
			return h.fail(ctx, err)
		}
		h.invalidate(ctx)
		return jsonResponse(http.StatusOK, models.NewNodeResponse(node))
	case len(rest) == 0 && method == http.MethodDelete:
		if err := h.svc.Delete(ctx, id); err != nil {
			return h.fail(ctx, err)
		}
		h.invalidate(ctx)
		return response{StatusCode: http.StatusNoContent}
	case len(rest) == 1 && rest[0] == "move" && method == http.MethodPost:
		var req models.MoveNodeRequest
		if resp, ok := decode(body, &req, req.Validate); !ok {
			return resp
		}
		node, err := h.svc.Move(ctx, id, req.ParentID)
		if err != nil {
			return h.fail(ctx, err)
		}
		h.invalidate(ctx)
		return jsonResponse(http.StatusOK, models.NewNodeResponse(node))
	case len(rest) == 1 && rest[0] == "ancestors" && method == http.MethodGet:
		nodes, err := h.svc.Ancestors(ctx, id)
		if err != nil {
			return h.fail(ctx, err)
		}
		return jsonResponse(http.StatusOK, models.NewNodeResponses(nodes))
	case len(rest) == 1 && rest[0] == "descendants" && method == http.MethodGet:
		nodes, err := h.svc.Descendants(ctx, id)
		if err != nil {
			return h.fail(ctx, err)
		}
		return jsonResponse(http.StatusOK, models.NewNodeResponses(nodes))
	case len(rest) == 1 && rest[0] == "subtree" && method == http.MethodGet:
		nodes, err := h.svc.Subtree(ctx, id)
		if err != nil {
			return h.fail(ctx, err)
		}
		roots, err := handlers.BuildTreeFromNodes(nodes)
		if err != nil {
			return h.fail(ctx, err)
		}
		return jsonResponse(http.StatusOK, roots[0])
	case len(rest) == 2 && rest[0] == "contains" && method == http.MethodGet:
		other, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil || other <= 0 {
			return errorResponse(http.StatusBadRequest, "invalid other")
		}
		ok, err := h.svc.Contains(ctx, id, other)
		if err != nil {
			return h.fail(ctx, err)
		}
		return jsonResponse(http.StatusOK, map[string]bool{"contains": ok})
	}
	return errorResponse(http.StatusNotFound, "not found")
}

func (h *Handler) getTree(ctx context.Context) response {
	if cachedTree, found := cache.GetTree(ctx); found {
		return jsonResponse(http.StatusOK, cachedTree)
	}

	gen, genErr := cache.Generation(ctx)
	nodes, err := h.svc.Forest(ctx)
	if err != nil {
		return h.fail(ctx, err)
	}
	rootNodes, err := handlers.BuildTreeFromNodes(nodes)
	if err != nil {
		return h.fail(ctx, err)
	}
	if genErr != nil {
		zerolog.Ctx(ctx).Warn().Err(genErr).Msg("failed to read cache generation")
	} else if err := cache.SetTree(ctx, gen, rootNodes); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to cache tree")
	}
	return jsonResponse(http.StatusOK, rootNodes)
}

func (h *Handler) createNode(ctx context.Context, body string) response {
	var req models.CreateNodeRequest
	if resp, ok := decode(body, &req, req.Validate); !ok {
		return resp
	}
	node, err := h.svc.Create(ctx, req.Name, req.ParentID)
	if err != nil {
		return h.fail(ctx, err)
	}
	h.invalidate(ctx)
	return jsonResponse(http.StatusCreated, models.NewNodeResponse(node))
}

func (h *Handler) invalidate(ctx context.Context) {
	if err := cache.InvalidateCache(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to invalidate tree cache")
	}
}

// fail logs through the request logger Handle stores on ctx
func (h *Handler) fail(ctx context.Context, err error) response {
	status, msg := handlers.StatusFor(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(ctx).Error().Err(err).Msg("request failed")
	}
	return errorResponse(status, msg)
}

func decode(body string, req any, validate func() error) (response, bool) {
	if err := json.Unmarshal([]byte(body), req); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid request: "+err.Error()), false
	}
	if err := validate(); err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), false
	}
	return response{}, true
}

func jsonResponse(status int, v any) response {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "failed to marshal response")
	}
	return response{StatusCode: status, Body: string(body)}
}

func errorResponse(status int, msg string) response {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return response{StatusCode: status, Body: string(body)}
}
