package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/starford/codewiki/internal/pageservice"
	"github.com/starford/codewiki/internal/sse"
)

// RouterOption customizes the API router.
type RouterOption func(*Handler)

// WithEvents mounts the event stream at /events and reports link pass
// progress to it.
func WithEvents(b *sse.Broker) RouterOption {
	return func(h *Handler) {
		h.events = b
	}
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// corsOrigins, when non-empty, enables CORS for those origins; preflight
// requests are answered before authentication.
func NewRouter(svc *pageservice.Service, authEnabled bool, token string, corsOrigins []string, opts ...RouterOption) chi.Router {
	h := NewHandler(svc)
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(AuthMiddleware(authEnabled, token))

	// Pages.
	r.Get("/pages", h.ListPages)
	r.Get("/pages/*", h.GetPage)

	// Retrieval.
	r.Get("/search", h.Search)
	r.Get("/toc/*", h.TableOfContents)
	r.Get("/related/*", h.Related)
	r.Get("/relations/*", h.Relations)

	// Graph health.
	r.Get("/report", h.Report)
	r.Get("/graph", h.Graph)

	// Link pass.
	r.Post("/link", h.Link)

	if h.events != nil {
		r.Get("/events", h.events.ServeHTTP)
	}

	return r
}
