package engine

import (
	"context"
	"fmt"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/cache"
	"github.com/starford/lattice/internal/graph"
	"github.com/starford/lattice/internal/index"
)

const (
	variantBacklinks = "backlinks"
	variantOutgoing  = "outgoing"
	variantMentions  = "mentions"
	variantRaw       = "raw"
)

// LinkInfo is one backlink: the source note and the alias it used.
type LinkInfo struct {
	Path     string  `json:"path"`
	Title    string  `json:"title"`
	LinkText *string `json:"link_text"`
}

// GraphKey returns the key a Graph response answers.
func GraphKey(f graph.Filters) cache.Key {
	return cache.Key{Class: cache.ClassGraph, Variant: f.Key()}
}

// LocalKey returns the key a LocalGraph response answers.
func LocalKey(path string, depth int, f graph.Filters) cache.Key {
	return cache.Key{Class: cache.ClassLocal, Path: path, Depth: depth, Variant: f.Key()}
}

// LinksKey returns the key a link list response answers. variant is one of
// "backlinks", "outgoing" or "mentions".
func LinksKey(path, variant string) cache.Key {
	return cache.Key{Class: cache.ClassLinks, Path: path, Variant: variant}
}

// Graph returns the full vault graph with f applied. On failure the
// returned graph is empty with its Error set, alongside the error.
func (e *Engine) Graph(ctx context.Context, f graph.Filters) (*graph.Graph, error) {
	v, err := e.cache.GetOrCompute(ctx, GraphKey(f), func(ctx context.Context) (any, error) {
		base, err := e.fullGraph(ctx)
		if err != nil {
			return nil, err
		}
		return e.filter(base, f)
	})
	observeQuery("graph", err)
	if err != nil {
		return degraded(err), err
	}
	return v.(*graph.Graph), nil
}

// LocalGraph returns the neighborhood of path within depth hops of the graph
// left after f is applied. apperr.ErrNotFound and apperr.ErrInvalidDepth are returned as
// is; other failures also return an empty graph with its Error set.
func (e *Engine) LocalGraph(ctx context.Context, path string, depth int, f graph.Filters) (*graph.Graph, error) {
	if err := graph.ValidateDepth(depth); err != nil {
		observeQuery("local_graph", err)
		return nil, err
	}
	v, err := e.cache.GetOrCompute(ctx, LocalKey(path, depth, f), func(ctx context.Context) (any, error) {
		base, err := e.fullGraph(ctx)
		if err != nil {
			return nil, err
		}
		tags, err := e.tagsFor(f)
		if err != nil {
			return nil, err
		}
		return graph.FilteredLocalGraph(base, path, depth, f, tags)
	})
	observeQuery("local_graph", err)
	if err != nil {
		if apperr.IsClientError(err) {
			return nil, err
		}
		return degraded(err), err
	}
	return v.(*graph.Graph), nil
}

// Backlinks returns the resolved references pointing at path, ordered by
// source path and then document order.
func (e *Engine) Backlinks(ctx context.Context, path string) ([]LinkInfo, error) {
	key := LinksKey(path, variantBacklinks)
	v, err := e.cache.GetOrCompute(ctx, key, func(context.Context) (any, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()
		if err := e.known(path); err != nil {
			return nil, err
		}
		out := []LinkInfo{}
		for _, l := range e.ix.Incoming(path) {
			src, _ := e.ix.Note(l.Source)
			info := LinkInfo{Path: l.Source, Title: src.Title}
			if l.Alias != "" {
				alias := l.Alias
				info.LinkText = &alias
			}
			out = append(out, info)
		}
		return out, nil
	})
	observeQuery("backlinks", err)
	if err != nil {
		return nil, err
	}
	return v.([]LinkInfo), nil
}

// OutgoingLinks returns every reference of path in document order, each
// tagged with its resolution.
func (e *Engine) OutgoingLinks(ctx context.Context, path string) ([]graph.Link, error) {
	key := LinksKey(path, variantOutgoing)
	v, err := e.cache.GetOrCompute(ctx, key, func(context.Context) (any, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()
		if err := e.known(path); err != nil {
			return nil, err
		}
		out := e.ix.Outgoing(path)
		if out == nil {
			out = []graph.Link{}
		}
		return out, nil
	})
	observeQuery("outgoing", err)
	if err != nil {
		return nil, err
	}
	return v.([]graph.Link), nil
}

// UnlinkedMentions returns plain-text occurrences of path's title in other
// notes, delegated to the text index.
func (e *Engine) UnlinkedMentions(ctx context.Context, path string) ([]index.Mention, error) {
	key := LinksKey(path, variantMentions)
	v, err := e.cache.GetOrCompute(ctx, key, func(context.Context) (any, error) {
		e.mu.RLock()
		err := e.known(path)
		n, _ := e.ix.Note(path)
		e.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		return e.db.UnlinkedMentions(n.Title, path, 0)
	})
	observeQuery("mentions", err)
	if err != nil {
		return nil, err
	}
	return v.([]index.Mention), nil
}

// Resolve reports the note a raw wikilink target resolves to.
func (e *Engine) Resolve(target string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ix.Resolve(target)
}

// Has reports whether path is an indexed note.
func (e *Engine) Has(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ix.Has(path)
}

// fullGraph returns the unfiltered graph, cached under its own key so every
// filter variant shares one build.
func (e *Engine) fullGraph(ctx context.Context) (*graph.Graph, error) {
	key := cache.Key{Class: cache.ClassGraph, Variant: variantRaw}
	v, err := e.cache.GetOrCompute(ctx, key, func(context.Context) (any, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()
		if e.closed {
			return nil, apperr.ErrClosed
		}
		return graph.BuildGraph(e.ix, graph.SynthesizeConcepts(e.ix)), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Graph), nil
}

func (e *Engine) filter(g *graph.Graph, f graph.Filters) (*graph.Graph, error) {
	if f == graph.DefaultFilters() {
		return g, nil
	}
	tags, err := e.tagsFor(f)
	if err != nil {
		return nil, err
	}
	return graph.ApplyFilters(g, f, tags), nil
}

func (e *Engine) tagsFor(f graph.Filters) (map[string][]string, error) {
	if f.Tag == "" {
		return nil, nil
	}
	tags, err := e.db.TagsByPath()
	if err != nil {
		return nil, fmt.Errorf("engine: load tags: %w", err)
	}
	return tags, nil
}

// known must be called with mu held.
func (e *Engine) known(path string) error {
	if e.closed {
		return apperr.ErrClosed
	}
	if !e.ix.Has(path) {
		return fmt.Errorf("engine: %s: %w", path, apperr.ErrNotFound)
	}
	return nil
}

func degraded(err error) *graph.Graph {
	g := graph.Empty()
	g.Error = err.Error()
	return g
}
