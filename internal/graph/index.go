package graph

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/parser"
)

// Index is the bidirectional reference index over a set of notes.
// It is not safe for concurrent mutation; the caller owns locking.
type Index struct {
	notes    map[string]Note
	outgoing map[string][]Link
	// incoming holds resolved links only, keyed by target path.
	incoming map[string][]Link
	// dependents maps a normalized target key to the notes referencing it,
	// so a title or path change re-resolves only the notes it can affect.
	dependents map[string]map[string]struct{}
	lookup     *lookup
}

// Affected is the set of note paths whose neighborhood an update touched.
type Affected map[string]struct{}

func (a Affected) add(paths ...string) {
	for _, p := range paths {
		if p != "" {
			a[p] = struct{}{}
		}
	}
}

func (a Affected) merge(b Affected) {
	for p := range b {
		a[p] = struct{}{}
	}
}

// Paths returns the affected paths in sorted order.
func (a Affected) Paths() []string {
	out := make([]string, 0, len(a))
	for p := range a {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		notes:      make(map[string]Note),
		outgoing:   make(map[string][]Link),
		incoming:   make(map[string][]Link),
		dependents: make(map[string]map[string]struct{}),
		lookup:     newLookup(0),
	}
}

// Build indexes notes from scratch. Reference extraction fans out over at
// most workers goroutines (GOMAXPROCS when workers <= 0); the lookup table
// is complete before any reference is resolved.
func Build(ctx context.Context, notes []Note, workers int) (*Index, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	refs := make([][]parser.Reference, len(notes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range notes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refs[i] = parser.ExtractReferences(notes[i].Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("graph: build: %w", err)
	}

	ix := NewIndex()
	ix.lookup = newLookup(len(notes))
	for _, n := range notes {
		n = withTitle(n)
		ix.notes[n.Path] = n
		ix.lookup.add(n)
	}
	for i, n := range notes {
		ix.link(n.Path, refs[i], nil)
	}
	return ix, nil
}

// Upsert adds or replaces a note. When the note is new or its title changed,
// references elsewhere that may now resolve differently are re-resolved.
func (ix *Index) Upsert(n Note) Affected {
	n = withTitle(n)
	affected := Affected{}
	affected.add(n.Path)

	old, existed := ix.notes[n.Path]
	ix.unlink(n.Path, affected)
	if existed {
		ix.lookup.remove(old)
	}
	ix.notes[n.Path] = n
	ix.lookup.add(n)
	ix.link(n.Path, parser.ExtractReferences(n.Text), affected)

	if !existed || old.Title != n.Title {
		keys := keysOf(n)
		if existed {
			keys = append(keys, keysOf(old)...)
		}
		ix.reresolve(keys, n.Path, affected)
	}
	return affected
}

// Remove deletes a note. References that resolved to it become unresolved,
// or resolve to the next best candidate.
func (ix *Index) Remove(path string) Affected {
	affected := Affected{}
	n, ok := ix.notes[path]
	if !ok {
		return affected
	}
	affected.add(path)
	for _, l := range ix.incoming[path] {
		affected.add(l.Source)
	}
	ix.unlink(path, affected)
	ix.lookup.remove(n)
	delete(ix.notes, path)
	ix.reresolve(keysOf(n), "", affected)
	if len(ix.incoming[path]) == 0 {
		delete(ix.incoming, path)
	}
	return affected
}

// Rename moves a note to n.Path in a single step.
func (ix *Index) Rename(oldPath string, n Note) Affected {
	affected := ix.Remove(oldPath)
	affected.merge(ix.Upsert(n))
	return affected
}

// link resolves refs of source and records them in both directions.
func (ix *Index) link(source string, refs []parser.Reference, affected Affected) {
	if len(refs) == 0 {
		delete(ix.outgoing, source)
		return
	}
	links := make([]Link, 0, len(refs))
	for _, ref := range refs {
		key := NormalizeTarget(ref.Target)
		l := Link{Source: source, Reference: ref, Resolution: ix.resolve(ref.Target)}
		links = append(links, l)
		addTo(ix.dependents, key, source)
		if target, ok := l.TargetPath(); ok {
			ix.incoming[target] = append(ix.incoming[target], l)
			if affected != nil {
				affected.add(target)
			}
		}
	}
	ix.outgoing[source] = links
}

// unlink drops every outgoing entry of source and the incoming entries it
// contributed.
func (ix *Index) unlink(source string, affected Affected) {
	for _, l := range ix.outgoing[source] {
		removeFrom(ix.dependents, NormalizeTarget(l.Target), source)
		target, ok := l.TargetPath()
		if !ok {
			continue
		}
		affected.add(target)
		in := ix.incoming[target][:0]
		for _, x := range ix.incoming[target] {
			if x.Source != source {
				in = append(in, x)
			}
		}
		if len(in) == 0 {
			delete(ix.incoming, target)
		} else {
			ix.incoming[target] = in
		}
	}
	delete(ix.outgoing, source)
}

// reresolve recomputes the links of every note that references one of keys.
func (ix *Index) reresolve(keys []string, skip string, affected Affected) {
	sources := map[string]struct{}{}
	for _, k := range keys {
		for src := range ix.dependents[k] {
			if src != skip {
				sources[src] = struct{}{}
			}
		}
	}
	for src := range sources {
		refs := make([]parser.Reference, 0, len(ix.outgoing[src]))
		for _, l := range ix.outgoing[src] {
			refs = append(refs, l.Reference)
		}
		affected.add(src)
		ix.unlink(src, affected)
		ix.link(src, refs, affected)
	}
}

func (ix *Index) resolve(target string) Resolution {
	if p, ok := ix.lookup.resolve(NormalizeTarget(target)); ok {
		return Resolved{TargetPath: p}
	}
	return Unresolved{ConceptName: NormalizeTarget(target)}
}

// Resolve reports the note a raw target resolves to under the current index.
func (ix *Index) Resolve(target string) (string, bool) {
	return ix.lookup.resolve(NormalizeTarget(target))
}

// Has reports whether path is indexed.
func (ix *Index) Has(path string) bool {
	_, ok := ix.notes[path]
	return ok
}

// Note returns the indexed note at path.
func (ix *Index) Note(path string) (Note, bool) {
	n, ok := ix.notes[path]
	return n, ok
}

// Len returns the number of indexed notes.
func (ix *Index) Len() int { return len(ix.notes) }

// Paths returns every indexed path in sorted order.
func (ix *Index) Paths() []string {
	out := make([]string, 0, len(ix.notes))
	for p := range ix.notes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Outgoing returns the links of path in document order.
func (ix *Index) Outgoing(path string) []Link {
	return append([]Link(nil), ix.outgoing[path]...)
}

// Incoming returns the resolved links pointing at path, ordered by source
// path and then document order.
func (ix *Index) Incoming(path string) []Link {
	out := append([]Link(nil), ix.incoming[path]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Unresolved returns every unresolved link ordered by source path and then
// document order.
func (ix *Index) Unresolved() []Link {
	var out []Link
	for _, p := range ix.Paths() {
		for _, l := range ix.outgoing[p] {
			if _, ok := l.Resolution.(Unresolved); ok {
				out = append(out, l)
			}
		}
	}
	return out
}

// Verify checks that the incoming and outgoing tables agree and that stored
// resolutions match a fresh resolution. With no paths every note is checked.
func (ix *Index) Verify(paths ...string) error {
	if len(paths) == 0 {
		paths = ix.Paths()
	}
	for _, p := range paths {
		for _, l := range ix.outgoing[p] {
			if want := ix.resolve(l.Target); want != l.Resolution {
				return fmt.Errorf("graph: verify %s: stale resolution of %q: %w", p, l.Target, apperr.ErrIndexInconsistent)
			}
			target, ok := l.TargetPath()
			if !ok {
				continue
			}
			if !ix.Has(target) {
				return fmt.Errorf("graph: verify %s: link to missing %s: %w", p, target, apperr.ErrIndexInconsistent)
			}
			if out, in := ix.countOut(p, target), ix.countIn(target, p); out != in {
				return fmt.Errorf("graph: verify %s -> %s: %d outgoing vs %d incoming: %w", p, target, out, in, apperr.ErrIndexInconsistent)
			}
		}
		for _, l := range ix.incoming[p] {
			if !ix.Has(l.Source) {
				return fmt.Errorf("graph: verify %s: backlink from missing %s: %w", p, l.Source, apperr.ErrIndexInconsistent)
			}
			if out, in := ix.countOut(l.Source, p), ix.countIn(p, l.Source); out != in {
				return fmt.Errorf("graph: verify %s <- %s: %d outgoing vs %d incoming: %w", p, l.Source, out, in, apperr.ErrIndexInconsistent)
			}
		}
	}
	return nil
}

func (ix *Index) countOut(source, target string) int {
	n := 0
	for _, l := range ix.outgoing[source] {
		if t, ok := l.TargetPath(); ok && t == target {
			n++
		}
	}
	return n
}

func (ix *Index) countIn(target, source string) int {
	n := 0
	for _, l := range ix.incoming[target] {
		if l.Source == source {
			n++
		}
	}
	return n
}

func withTitle(n Note) Note {
	if n.Title == "" {
		n.Title = parser.StemTitle(n.Path)
	}
	return n
}
