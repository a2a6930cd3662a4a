package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/talent-copilot/internal/middleware"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

// RouterConfig wires handlers into the HTTP surface.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger

	// UserRateLimitRequests caps turns and uploads per user in
	// RateLimitWindow. Zero disables the per-user limit.
	UserRateLimitRequests int

	Health    *HealthHandler
	Chat      *ChatHandler
	Jobs      *JobHandler
	Workspace *WorkspaceHandler
	Sessions  *SessionHandler
	// Events is nil when event publishing is disabled.
	Events *EventHandler
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Group(func(r chi.Router) {
			if cfg.UserRateLimitRequests > 0 {
				r.Use(middleware.UserRateLimit(cfg.UserRateLimitRequests, cfg.RateLimitWindow))
			}
			r.Post("/chat", cfg.Chat.Chat)
			r.Post("/confirm", cfg.Chat.Confirm)
			r.Post("/upload/profile", cfg.Workspace.UploadProfile)
		})

		r.Get("/jobs/{id}", cfg.Jobs.Get)
		r.Get("/workspace", cfg.Workspace.Snapshot)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", cfg.Sessions.Get)
			r.Get("/messages", cfg.Sessions.Messages)
			if cfg.Events != nil {
				r.Get("/events", cfg.Events.Stream)
			}
		})
	})

	return r
}
