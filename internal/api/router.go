package api

import (
	"net/http"

	"github.com/ashureev/scrum-ai/internal/conversation"
	"github.com/ashureev/scrum-ai/internal/directive"
	"github.com/ashureev/scrum-ai/internal/identity"
	"github.com/ashureev/scrum-ai/internal/metrics"
	"github.com/ashureev/scrum-ai/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	Registry       *conversation.Registry
	Users          identity.UserStore
	DB             Pinger
	Classifier     *directive.Classifier
	RateLimiter    *RateLimiter
	AllowedOrigins []string
	IsDev          bool
	// RequestLog enables chi's request logger.
	RequestLog bool
}

// NewRouter wires middleware and routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if cfg.RequestLog {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	NewHealthHandler(cfg.DB).RegisterHealth(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Everything else runs under the anonymous device identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.Users, cfg.IsDev))
		NewAssistantHandler(cfg.Registry, cfg.Classifier, cfg.RateLimiter).RegisterRoutes(r)
		r.Get("/ws/assistant", NewEventsHandler(cfg.Registry, cfg.AllowedOrigins, cfg.IsDev).ServeHTTP)
	})

	return r
}
