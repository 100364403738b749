package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"

	"mapproxy/internal/api/handler"
	"mapproxy/internal/config"
	"mapproxy/internal/coordinator"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(coord *coordinator.Coordinator, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// CORS: any origin may read the feeds
	c := corslib.New(corslib.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type", "Authorization"},
		AllowCredentials:     false,
		OptionsSuccessStatus: http.StatusNoContent,
	})
	r.Use(c.Handler)
	r.Use(Preflight)

	h := handler.New(coord, cfg.PrettyJSON, logger)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.NotFound)

	// --- Routes ---
	r.Get("/map", h.Map)
	r.Get("/map/{id}", h.Map)
	r.Get("/player", h.Player)
	r.Get("/player/{id}", h.Player)
	r.Get("/data", h.Data)
	r.Get("/debug", h.Debug)
	r.Get("/health", h.HealthCheck)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
