package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/minto/internal/diagramservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *diagramservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Generation.
	r.Post("/synthesize", h.Synthesize)
	r.Post("/expand", h.Expand)

	// Stateless layout.
	r.Post("/layout", h.Layout)

	// History.
	r.Route("/diagrams", func(r chi.Router) {
		r.Get("/", h.ListDiagrams)
		r.Post("/", h.ImportDiagram)
		r.Delete("/", h.ClearDiagrams)
		r.Get("/{id}", h.GetDiagram)
		r.Delete("/{id}", h.DeleteDiagram)
		r.Post("/{id}/expand", h.ExpandDiagram)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
