package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/engine"
	"github.com/starford/lattice/internal/graph"
)

// parseFilters reads graph filters from the query string. Boolean flags
// default to true when absent.
func parseFilters(r *http.Request) (graph.Filters, error) {
	q := r.URL.Query()
	f := graph.DefaultFilters()
	f.Folder = q.Get("folder")
	f.Tag = q.Get("tag")
	var err error
	if v := q.Get("concepts"); v != "" {
		if f.ShowConceptLinks, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("invalid concepts flag %q", v)
		}
	}
	if v := q.Get("orphans"); v != "" {
		if f.ShowOrphans, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("invalid orphans flag %q", v)
		}
	}
	return f, nil
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the vault link graph
//	@Tags			graph
//	@Produce		json
//	@Param			folder		query		string	false	"Restrict to a folder"
//	@Param			tag			query		string	false	"Restrict to notes carrying a tag"
//	@Param			concepts	query		bool	false	"Include concept edges"	default(true)
//	@Param			orphans		query		bool	false	"Include unconnected nodes"	default(true)
//	@Success		200			{object}	GraphResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	g, err := h.engine.Graph(r.Context(), f)
	if err != nil {
		slog.Error("graph failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, GraphResponse{Key: engine.GraphKey(f).String(), Graph: g})
}

// LocalGraph handles GET /api/graph/local/*.
//
//	@Summary		Get the neighborhood of a note
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Param			depth	query		int		false	"Hops from the note (1-3)"
//	@Success		200		{object}	GraphResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/local/{path} [get]
func (h *Handler) LocalGraph(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	depth := h.defaultDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("depth must be an integer"))
			return
		}
		depth = d
	}
	f, err := parseFilters(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	g, err := h.engine.LocalGraph(r.Context(), path, depth, f)
	if err != nil {
		if apperr.IsClientError(err) {
			writeError(w, err, "local graph")
			return
		}
		slog.Error("local graph failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, GraphResponse{Key: engine.LocalKey(path, depth, f).String(), Graph: g})
}

// Backlinks handles GET /api/links/backlinks/*.
//
//	@Summary		List notes linking to a note
//	@Tags			links
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	LinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	h.linkList(w, r, "backlinks", func(path string) (any, error) {
		return h.engine.Backlinks(r.Context(), path)
	})
}

// OutgoingLinks handles GET /api/links/outgoing/*.
//
//	@Summary		List the references a note makes
//	@Tags			links
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	LinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/outgoing/{path} [get]
func (h *Handler) OutgoingLinks(w http.ResponseWriter, r *http.Request) {
	h.linkList(w, r, "outgoing", func(path string) (any, error) {
		return h.engine.OutgoingLinks(r.Context(), path)
	})
}

// UnlinkedMentions handles GET /api/links/mentions/*.
//
//	@Summary		List plain-text mentions of a note title
//	@Tags			links
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	LinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/mentions/{path} [get]
func (h *Handler) UnlinkedMentions(w http.ResponseWriter, r *http.Request) {
	h.linkList(w, r, "mentions", func(path string) (any, error) {
		return h.engine.UnlinkedMentions(r.Context(), path)
	})
}

func (h *Handler) linkList(w http.ResponseWriter, r *http.Request, variant string, query func(string) (any, error)) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	links, err := query(path)
	if err != nil {
		writeError(w, err, "link query", slog.String("variant", variant), slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{
		Key:   engine.LinksKey(path, variant).String(),
		Path:  path,
		Links: links,
	})
}

// Rebuild handles POST /api/index/rebuild.
//
//	@Summary		Rebuild the index from the vault
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	RebuildResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Rebuild(r.Context())
	if err != nil {
		writeError(w, err, "rebuild")
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse(stats))
}
