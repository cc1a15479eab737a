package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lattice/internal/engine"
	"github.com/starford/lattice/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// defaultDepth is the local graph depth used when a request omits it.
func NewRouter(svc *noteservice.Service, eng *engine.Engine, authEnabled bool, token string, sseHandler http.Handler, defaultDepth int) chi.Router {
	h := NewHandler(svc, eng, defaultDepth)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/move", h.MoveNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Search.
	r.Get("/search", h.Search)

	// Graph.
	r.Get("/graph", h.Graph)
	r.Get("/graph/local/*", h.LocalGraph)

	// Link lists.
	r.Get("/links/backlinks/*", h.Backlinks)
	r.Get("/links/outgoing/*", h.OutgoingLinks)
	r.Get("/links/mentions/*", h.UnlinkedMentions)

	r.Post("/index/rebuild", h.Rebuild)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
