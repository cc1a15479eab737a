package index

import (
	"fmt"
	"log/slog"

	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
	"github.com/starford/lattice/internal/storage"
)

// SyncStats reports what Sync changed.
type SyncStats struct {
	Upserted int `json:"upserted"`
	Removed  int `json:"removed"`
	Errors   int `json:"errors"`
}

// LoadNote reads and parses the note at path. A note without a frontmatter
// title or H1 is titled after its file name.
func LoadNote(store storage.Provider, path string) (models.Note, error) {
	data, err := store.Read(path)
	if err != nil {
		return models.Note{}, err
	}
	meta, err := store.Stat(path)
	if err != nil {
		return models.Note{}, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return models.Note{}, fmt.Errorf("index: parse %s: %w", path, err)
	}
	title := res.Title
	if title == "" {
		title = parser.StemTitle(path)
	}
	return models.Note{
		Path:     path,
		Title:    title,
		Body:     res.Body,
		Tags:     res.Tags,
		Checksum: storage.Checksum(data),
		ModTime:  meta.ModTime,
	}, nil
}

// Row converts a loaded note to its index row.
func Row(n models.Note) NoteRow {
	return NoteRow{Path: n.Path, Title: n.Title, Checksum: n.Checksum, Tags: n.Tags, UpdatedAt: n.ModTime}
}

// Sync brings the index up to date with notes, the full current vault:
//   - new/changed notes (by checksum) are upserted
//   - rows whose file is gone are deleted
func Sync(db NoteIndex, notes []models.Note, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats
	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}

	present := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		present[n.Path] = struct{}{}
		if checksums[n.Path] == n.Checksum {
			continue
		}
		if err := db.UpsertNote(Row(n), n.Body); err != nil {
			stats.Errors++
			logger.Warn("sync: index failed", slog.String("path", n.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Upserted++
		logger.Debug("sync: indexed", slog.String("path", n.Path))
	}

	for p := range checksums {
		if _, ok := present[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			stats.Errors++
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}
	return stats, nil
}
