package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions carries the optional pieces of the HTTP surface.
type RouterOptions struct {
	// RateLimit, when set, guards the model and chat routes.
	RateLimit func(http.Handler) http.Handler
	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter wires the handlers and middleware chain.
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS)

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}
		r.Get("/v1/models", h.ListModels)
		r.Post("/v1/chat/completions", h.ChatCompletions)
		r.Post("/api/v1/chat/completions", h.ChatCompletions)
		r.Post("/v1/messages", h.ChatCompletions)
	})

	return r
}
