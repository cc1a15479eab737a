package api

import (
	"time"

	"github.com/starford/lattice/internal/graph"
	"github.com/starford/lattice/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// MoveNoteRequest is the request body for renaming a note.
type MoveNoteRequest struct {
	From string `json:"from" example:"notes/hello.md" validate:"required"`
	To   string `json:"to" example:"archive/hello.md" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GraphResponse is a graph together with the cache key it answers.
// A non-empty error field marks a degraded, empty graph.
type GraphResponse struct {
	Key string `json:"key" example:"graph||0|folder=;tag=;concepts=true;orphans=true" validate:"required"`
	*graph.Graph
}

// LinksResponse wraps a backlink, outgoing link or mention list.
type LinksResponse struct {
	Key   string `json:"key" validate:"required"`
	Path  string `json:"path" example:"notes/hello.md" validate:"required"`
	Links any    `json:"links" validate:"required"`
}

// RebuildResponse reports a completed full rebuild.
type RebuildResponse struct {
	NotesIndexed int           `json:"notes_indexed" example:"120"`
	Errors       int           `json:"errors" example:"0"`
	Upserted     int           `json:"upserted" example:"3"`
	Removed      int           `json:"removed" example:"1"`
	Duration     time.Duration `json:"duration_ns" swaggertype:"integer"`
}
