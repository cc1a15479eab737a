// Package engine is the link graph service: it owns the resolution index
// for one vault, answers graph and link queries through the result cache,
// and applies persisted vault changes incrementally.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/cache"
	"github.com/starford/lattice/internal/graph"
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/storage"
)

// Event describes a change the engine has applied.
type Event struct {
	Change models.Change
	// Affected lists the notes whose neighborhood changed.
	Affected []string
	// Rebuild is set after a full rebuild; Change is empty then and Stats
	// reports the rebuild.
	Rebuild bool
	Stats   Stats
}

// Stats reports a full rebuild.
type Stats struct {
	NotesIndexed int           `json:"notes_indexed"`
	Errors       int           `json:"errors"`
	Upserted     int           `json:"upserted"`
	Removed      int           `json:"removed"`
	Duration     time.Duration `json:"duration_ns"`
}

// Engine is safe for concurrent use. Payloads returned by queries are
// shared with the cache and must not be modified.
type Engine struct {
	store   storage.Provider
	db      index.NoteIndex
	clock   cache.Clock
	ttls    cache.TTLs
	logger  *slog.Logger
	onEvent func(Event)
	workers int

	cache *cache.Cache

	// mu guards ix and closed. Queries hold it shared while computing.
	mu     sync.RWMutex
	ix     *graph.Index
	closed bool
}

// Open builds the engine and indexes the vault once.
func Open(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{ttls: cache.DefaultTTLs()}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if e.db == nil {
		return nil, fmt.Errorf("engine: index db is required")
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = cache.SystemClock{}
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	e.cache = cache.New(e.clock, e.ttls)
	e.ix = graph.NewIndex()

	if _, err := e.Rebuild(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Close releases the in-memory index. The store and index db belong to the
// caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.ix = graph.NewIndex()
	e.cache.InvalidateAll()
	return nil
}

// Root returns the vault directory.
func (e *Engine) Root() string { return e.store.Root() }

// Rebuild re-reads the whole vault and replaces the index. It is the
// correctness fallback for any incremental update that went wrong.
func (e *Engine) Rebuild(ctx context.Context) (Stats, error) {
	start := time.Now()
	notes, loadErrs, err := e.loadAll(ctx)
	if err != nil {
		rebuildsTotal.WithLabelValues("error").Inc()
		return Stats{}, err
	}

	synced, err := index.Sync(e.db, notes, e.logger)
	if err != nil {
		rebuildsTotal.WithLabelValues("error").Inc()
		return Stats{}, fmt.Errorf("engine: sync index: %w", err)
	}

	gnotes := make([]graph.Note, len(notes))
	for i, n := range notes {
		gnotes[i] = toGraphNote(n)
	}
	ix, err := graph.Build(ctx, gnotes, e.workers)
	if err != nil {
		rebuildsTotal.WithLabelValues("error").Inc()
		return Stats{}, fmt.Errorf("engine: rebuild: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Stats{}, apperr.ErrClosed
	}
	e.ix = ix
	e.cache.InvalidateAll()
	e.mu.Unlock()

	stats := Stats{
		NotesIndexed: len(notes),
		Errors:       loadErrs + synced.Errors,
		Upserted:     synced.Upserted,
		Removed:      synced.Removed,
		Duration:     time.Since(start),
	}
	rebuildsTotal.WithLabelValues("ok").Inc()
	rebuildDuration.Observe(stats.Duration.Seconds())
	e.logger.Info("engine: rebuilt",
		slog.Int("notes", stats.NotesIndexed),
		slog.Int("errors", stats.Errors),
		slog.Duration("duration", stats.Duration))
	e.emit(Event{Rebuild: true, Stats: stats})
	return stats, nil
}

// loadAll reads and parses every note. Unreadable notes are logged and
// counted, not fatal.
func (e *Engine) loadAll(ctx context.Context) ([]models.Note, int, error) {
	metas, err := e.store.List("")
	if err != nil {
		return nil, 0, fmt.Errorf("engine: list vault: %w", err)
	}

	loaded := make([]models.Note, len(metas))
	ok := make([]bool, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, m := range metas {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := index.LoadNote(e.store, m.Path)
			if err != nil {
				e.logger.Warn("engine: load failed", slog.String("path", m.Path), slog.String("error", err.Error()))
				return nil
			}
			loaded[i], ok[i] = n, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("engine: load vault: %w", err)
	}

	notes := make([]models.Note, 0, len(metas))
	errs := 0
	for i := range loaded {
		if ok[i] {
			notes = append(notes, loaded[i])
		} else {
			errs++
		}
	}
	return notes, errs, nil
}

// Apply records one persisted vault change: the text index row and the
// link index are updated, affected cache entries are dropped, and the
// affected neighborhood is verified. An inconsistent index is rebuilt.
func (e *Engine) Apply(ctx context.Context, c models.Change) error {
	if e.isClosed() {
		return apperr.ErrClosed
	}
	var (
		affected graph.Affected
		err      error
	)
	switch c.Kind {
	case models.ChangeCreated, models.ChangeModified:
		affected, err = e.applyWrite(c.Path)
	case models.ChangeDeleted:
		affected, err = e.applyDelete(c.Path)
	case models.ChangeRenamed:
		affected, err = e.applyRename(c.OldPath, c.Path)
	default:
		return fmt.Errorf("engine: unknown change kind %q", c.Kind)
	}
	if err != nil {
		appliesTotal.WithLabelValues(string(c.Kind), "error").Inc()
		return err
	}
	if affected == nil {
		appliesTotal.WithLabelValues(string(c.Kind), "noop").Inc()
		return nil
	}
	appliesTotal.WithLabelValues(string(c.Kind), "ok").Inc()

	paths := affected.Paths()
	if err := e.verify(paths); err != nil {
		e.logger.Warn("engine: index inconsistent, rebuilding",
			slog.String("path", c.Path),
			slog.String("error", err.Error()))
		if _, err := e.Rebuild(ctx); err != nil {
			return err
		}
		return nil
	}
	e.logger.Debug("engine: applied",
		slog.String("op", string(c.Kind)),
		slog.String("path", c.Path),
		slog.Int("affected", len(paths)))
	e.emit(Event{Change: c, Affected: paths})
	return nil
}

func (e *Engine) applyWrite(path string) (graph.Affected, error) {
	n, err := index.LoadNote(e.store, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return e.applyDelete(path)
	}
	if err != nil {
		return nil, err
	}

	if cs, _ := e.db.GetChecksum(path); cs == n.Checksum {
		e.mu.RLock()
		known := e.ix.Has(path)
		e.mu.RUnlock()
		if known {
			return nil, nil
		}
	}
	if err := e.db.UpsertNote(index.Row(n), n.Body); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	affected := e.ix.Upsert(toGraphNote(n))
	e.invalidate(affected)
	return affected, nil
}

func (e *Engine) applyDelete(path string) (graph.Affected, error) {
	if err := e.db.DeleteNote(path); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ix.Has(path) {
		return nil, nil
	}
	affected := e.ix.Remove(path)
	e.invalidate(affected)
	return affected, nil
}

func (e *Engine) applyRename(oldPath, newPath string) (graph.Affected, error) {
	if oldPath == "" || oldPath == newPath {
		return e.applyWrite(newPath)
	}
	n, err := index.LoadNote(e.store, newPath)
	if err != nil {
		return nil, err
	}
	if err := e.db.RenameNote(oldPath, newPath); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err := e.db.UpsertNote(index.Row(n), n.Body); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	affected := e.ix.Rename(oldPath, toGraphNote(n))
	e.invalidate(affected)
	e.cache.InvalidatePath(oldPath)
	return affected, nil
}

// Reconcile compares the vault with the index and applies the differences.
// It covers changes the watcher could not observe directly.
func (e *Engine) Reconcile(ctx context.Context) error {
	metas, err := e.store.List("")
	if err != nil {
		return fmt.Errorf("engine: reconcile: %w", err)
	}
	checksums, err := e.db.AllChecksums()
	if err != nil {
		return fmt.Errorf("engine: reconcile: %w", err)
	}

	e.mu.RLock()
	known := e.ix.Paths()
	e.mu.RUnlock()

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		cs, indexed := checksums[m.Path]
		if indexed && cs == m.Checksum {
			continue
		}
		kind := models.ChangeModified
		if !indexed {
			kind = models.ChangeCreated
		}
		if err := e.Apply(ctx, models.Change{Kind: kind, Path: m.Path}); err != nil {
			e.logger.Warn("engine: reconcile apply failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}

	stale := map[string]struct{}{}
	for p := range checksums {
		stale[p] = struct{}{}
	}
	for _, p := range known {
		stale[p] = struct{}{}
	}
	for p := range stale {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := e.Apply(ctx, models.Change{Kind: models.ChangeDeleted, Path: p}); err != nil {
			e.logger.Warn("engine: reconcile delete failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (e *Engine) verify(paths []string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ix.Verify(paths...)
}

// invalidate drops every cache entry a change to affected can stale: all
// full and local graphs, link lists of the affected notes, and unlinked
// mentions everywhere since those depend on other notes' text.
// Callers hold mu.
func (e *Engine) invalidate(affected graph.Affected) {
	e.cache.InvalidateClass(cache.ClassGraph)
	e.cache.InvalidateClass(cache.ClassLocal)
	e.cache.InvalidateFunc(func(k cache.Key) bool {
		if k.Class != cache.ClassLinks {
			return false
		}
		if k.Variant == variantMentions {
			return true
		}
		_, ok := affected[k.Path]
		return ok
	})
}

// PruneCache drops expired cache entries and returns how many it removed.
func (e *Engine) PruneCache() int {
	return e.cache.Prune()
}

// Janitor prunes the cache every interval until ctx is done.
func (e *Engine) Janitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := e.PruneCache(); n > 0 {
				e.logger.Debug("engine: pruned cache", slog.Int("entries", n))
			}
		}
	}
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func toGraphNote(n models.Note) graph.Note {
	return graph.Note{Path: n.Path, Title: n.Title, Text: n.Body}
}
