// Package noteservice coordinates vault writes with the link engine: every
// persisted write is applied to the engine before the call returns.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/engine"
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
	"github.com/starford/lattice/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string            `json:"path"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Checksum    string            `json:"checksum"`
	Tags        []string          `json:"tags"`
	Frontmatter map[string]any    `json:"frontmatter,omitempty"`
	Backlinks   []engine.LinkInfo `json:"backlinks"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates storage, index and engine operations.
type Service struct {
	store  storage.Provider
	db     index.NoteIndex
	engine *engine.Engine
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.NoteIndex, eng *engine.Engine) *Service {
	return &Service{store: store, db: db, engine: eng}
}

// GetNote reads a note from storage and enriches it with backlinks.
func (s *Service) GetNote(ctx context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(ctx, path, data)
}

// CreateNote writes a new note and applies it.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	if !storage.IsNote(path) {
		return nil, fmt.Errorf("noteservice: %q is not a note: %w", path, apperr.ErrInvalidPath)
	}
	if _, err := s.store.Stat(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.engine.Apply(ctx, models.Change{Kind: models.ChangeCreated, Path: path}); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(ctx, path, content)
}

// UpdateNote writes updated content with optimistic concurrency: a non-empty
// ifMatch must equal the current checksum.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != storage.Checksum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.engine.Apply(ctx, models.Change{Kind: models.ChangeModified, Path: path}); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(ctx, path, content)
}

// DeleteNote removes a note from storage and applies the deletion.
func (s *Service) DeleteNote(ctx context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	return s.engine.Apply(ctx, models.Change{Kind: models.ChangeDeleted, Path: path})
}

// MoveNote renames a note. Links elsewhere are not rewritten; references to
// the old name resolve again only if they match the new path or title.
func (s *Service) MoveNote(ctx context.Context, oldPath, newPath string) (*NoteDetail, error) {
	if !storage.IsNote(newPath) {
		return nil, fmt.Errorf("noteservice: %q is not a note: %w", newPath, apperr.ErrInvalidPath)
	}
	if err := s.store.Move(oldPath, newPath); err != nil {
		return nil, err
	}
	if err := s.engine.Apply(ctx, models.Change{Kind: models.ChangeRenamed, Path: newPath, OldPath: oldPath}); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, newPath)
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(ctx context.Context, path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	title := res.Title
	if title == "" {
		title = parser.StemTitle(path)
	}
	bl, err := s.engine.Backlinks(ctx, path)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	var updated time.Time
	if meta, err := s.store.Stat(path); err == nil {
		updated = meta.ModTime
	}
	return &NoteDetail{
		Path:        path,
		Title:       title,
		Content:     string(data),
		Checksum:    storage.Checksum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   updated,
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
