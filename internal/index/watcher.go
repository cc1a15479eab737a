package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/storage"
)

// DefaultDebounce is the delay before reconciling after a rename.
const DefaultDebounce = 200 * time.Millisecond

// Applier receives the vault changes observed by Watch.
type Applier interface {
	Apply(ctx context.Context, c models.Change) error
	// Reconcile resyncs everything against the vault after changes whose
	// full effect the watcher cannot observe.
	Reconcile(ctx context.Context) error
}

// Watch starts an fsnotify watcher on the vault root and forwards note
// changes to a until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. fsnotify reports a rename as a Rename of the old path followed by a
// Create of the new one, so the old path is applied as deleted and a
// debounced reconciliation pass catches anything that moved out of view.
func Watch(ctx context.Context, store storage.Provider, a Applier, logger *slog.Logger, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	vaultRoot := store.Root()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(debounce)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(debounce)
		}
	}

	apply := func(kind models.ChangeKind, rel string) {
		if err := a.Apply(ctx, models.Change{Kind: kind, Path: rel}); err != nil {
			logger.Warn("watcher: apply failed",
				slog.String("path", rel),
				slog.String("op", string(kind)),
				slog.String("error", err.Error()))
			return
		}
		logger.Debug("watcher: applied", slog.String("path", rel), slog.String("op", string(kind)))
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := a.Reconcile(ctx); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(vaultRoot, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if storage.IsHidden(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
					for _, p := range notesUnder(vaultRoot, ev.Name) {
						apply(models.ChangeCreated, p)
					}
					continue
				}
			}

			if !storage.IsNote(rel) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				apply(models.ChangeCreated, rel)
			case ev.Op&fsnotify.Write != 0:
				apply(models.ChangeModified, rel)
			case ev.Op&fsnotify.Remove != 0:
				apply(models.ChangeDeleted, rel)
			case ev.Op&fsnotify.Rename != 0:
				apply(models.ChangeDeleted, rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// notesUnder lists the vault-relative note paths inside a new directory.
func notesUnder(vaultRoot, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && storage.IsHidden(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if storage.IsNote(rel) && !storage.IsHidden(rel) {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its visible subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
