package engine

import (
	"log/slog"

	"github.com/starford/lattice/internal/cache"
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/storage"
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithStore sets the vault file layer. Required.
func WithStore(store storage.Provider) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithIndexDB sets the text-search collaborator. Required.
func WithIndexDB(db index.NoteIndex) Option {
	return func(e *Engine) {
		e.db = db
	}
}

// WithClock sets the clock used for cache expiry.
func WithClock(clock cache.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTTLs overrides the cache lifetimes.
func WithTTLs(ttls cache.TTLs) Option {
	return func(e *Engine) {
		e.ttls = ttls
	}
}

// WithEventHandler registers fn to receive every applied change and rebuild.
// fn runs synchronously after the engine lock is released.
func WithEventHandler(fn func(Event)) Option {
	return func(e *Engine) {
		e.onEvent = fn
	}
}

// WithWorkers bounds the goroutines used for reading and extraction during
// a full rebuild.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}
