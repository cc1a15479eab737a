// Package cache holds computed graph and link payloads with per-class TTLs
// and explicit invalidation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_cache_lookups_total",
		Help: "Cache lookups by class and result",
	}, []string{"class", "result"})

	invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_cache_invalidations_total",
		Help: "Entries dropped by explicit invalidation, by class",
	}, []string{"class"})

	computeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lattice_cache_compute_duration_seconds",
		Help:    "Time spent computing a missing payload",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"class"})
)

// Clock abstracts time for expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Class groups keys that share a TTL.
type Class string

const (
	ClassGraph Class = "graph"
	ClassLocal Class = "local"
	ClassLinks Class = "links"
)

// Key identifies a cached payload. Path and Depth are zero for the full
// graph; Variant carries the filter fingerprint or link list kind.
type Key struct {
	Class   Class
	Path    string
	Depth   int
	Variant string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", k.Class, k.Path, k.Depth, k.Variant)
}

// TTLs are the lifetimes per class.
type TTLs struct {
	Graph time.Duration
	Local time.Duration
	Links time.Duration
}

// DefaultTTLs returns 60s for graphs and 30s for link lists.
func DefaultTTLs() TTLs {
	return TTLs{Graph: 60 * time.Second, Local: 60 * time.Second, Links: 30 * time.Second}
}

func (t TTLs) of(c Class) time.Duration {
	switch c {
	case ClassGraph:
		return t.Graph
	case ClassLocal:
		return t.Local
	default:
		return t.Links
	}
}

type entry struct {
	value   any
	expires time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	clock Clock
	ttls  TTLs

	mu      sync.RWMutex
	entries map[Key]entry
	// gen advances on every invalidation. A computation that started under
	// an older generation is returned to its callers but not stored.
	gen uint64

	flight singleflight.Group
}

// New creates a cache. A nil clock means SystemClock.
func New(clock Clock, ttls TTLs) *Cache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Cache{clock: clock, ttls: ttls, entries: make(map[Key]entry)}
}

// Get returns the live payload stored under k.
func (c *Cache) Get(k Key) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if ok && c.clock.Now().Before(e.expires) {
		lookupsTotal.WithLabelValues(string(k.Class), "hit").Inc()
		return e.value, true
	}
	lookupsTotal.WithLabelValues(string(k.Class), "miss").Inc()
	return nil, false
}

// Put stores v under k; the last writer wins.
func (c *Cache) Put(k Key, v any) {
	c.mu.Lock()
	c.entries[k] = entry{value: v, expires: c.clock.Now().Add(c.ttls.of(k.Class))}
	c.mu.Unlock()
}

// GetOrCompute returns the cached payload for k or computes it. Concurrent
// misses on the same key share one computation, but only within one
// generation: a request made after an invalidation never joins a
// computation that started before it.
func (c *Cache) GetOrCompute(ctx context.Context, k Key, compute func(context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	v, err, _ := c.flight.Do(fmt.Sprintf("%s#%d", k, gen), func() (any, error) {
		if v, ok := c.peek(k); ok {
			return v, nil
		}

		start := c.clock.Now()
		v, err := compute(ctx)
		computeDuration.WithLabelValues(string(k.Class)).Observe(c.clock.Now().Sub(start).Seconds())
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gen == gen {
			c.entries[k] = entry{value: v, expires: c.clock.Now().Add(c.ttls.of(k.Class))}
		}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// peek is Get without metrics, for the re-check inside a flight.
func (c *Cache) peek(k Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	if ok && c.clock.Now().Before(e.expires) {
		return e.value, true
	}
	return nil, false
}

// Invalidate drops k.
func (c *Cache) Invalidate(k Key) {
	c.drop(func(x Key) bool { return x == k })
}

// InvalidatePath drops every entry keyed by path.
func (c *Cache) InvalidatePath(path string) {
	c.drop(func(x Key) bool { return x.Path == path })
}

// InvalidateClass drops every entry of class.
func (c *Cache) InvalidateClass(class Class) {
	c.drop(func(x Key) bool { return x.Class == class })
}

// InvalidateFunc drops every entry whose key matches.
func (c *Cache) InvalidateFunc(match func(Key) bool) {
	c.drop(match)
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.drop(func(Key) bool { return true })
}

func (c *Cache) drop(match func(Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			invalidationsTotal.WithLabelValues(string(k.Class)).Inc()
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune removes expired entries.
func (c *Cache) Prune() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
