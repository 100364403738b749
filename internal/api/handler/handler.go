// Package handler provides the HTTP handlers for the proxy endpoints.
// Handlers translate requests into coordinator calls and never build
// responses by mutation; every response is a respond.Response value.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mapproxy/internal/api/respond"
	"mapproxy/internal/coordinator"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	coord  *coordinator.Coordinator
	pretty bool
	logger *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(coord *coordinator.Coordinator, pretty bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		coord:  coord,
		pretty: pretty,
		logger: logger,
	}
}

// Map serves /map and /map/{id}.
func (h *Handler) Map(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, coordinator.Request{Kind: coordinator.KindMap, ID: chi.URLParam(r, "id")})
}

// Player serves /player and /player/{id}.
func (h *Handler) Player(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, coordinator.Request{Kind: coordinator.KindPlayer, ID: chi.URLParam(r, "id")})
}

// Data serves the combined player and map payload at /data.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, coordinator.Request{Kind: coordinator.KindCombined})
}

// Debug echoes the request at /debug.
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, coordinator.Request{
		Kind:    coordinator.KindDebug,
		Method:  r.Method,
		Path:    r.URL.Path,
		URL:     r.URL.RequestURI(),
		Headers: r.Header,
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, h.pretty).Write(w)
}

// NotFound answers every unmatched route.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respond.NotFound(h.pretty).Write(w)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, req coordinator.Request) {
	payload, err := h.coord.Handle(r.Context(), req)
	if err != nil {
		h.logger.Error("request failed", "kind", req.Kind, "path", r.URL.Path, "error", err)
	}
	respond.FromResult(payload, err, h.pretty).Write(w)
}
