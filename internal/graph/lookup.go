package graph

import "github.com/starford/lattice/internal/parser"

// lookup maps normalized keys to note paths.
//
// Resolution policy for a normalized target key:
//  1. a note whose path (without ".md", case-folded) equals the key wins,
//     so [[Foo]] prefers Foo.md at the vault root and [[a/Foo]] names a/Foo.md;
//  2. otherwise every note whose normalized title or file stem equals the key
//     is a candidate;
//  3. among several candidates the shortest path wins, then the
//     lexicographically smallest.
type lookup struct {
	byPath map[string]map[string]struct{}
	byName map[string]map[string]struct{}
}

func newLookup(capacity int) *lookup {
	return &lookup{
		byPath: make(map[string]map[string]struct{}, capacity),
		byName: make(map[string]map[string]struct{}, capacity),
	}
}

// keysOf returns every key under which a note can be found.
func keysOf(n Note) []string {
	keys := []string{pathKey(n.Path), normalizeKey(n.Title)}
	if stem := normalizeKey(parser.StemTitle(n.Path)); stem != keys[1] {
		keys = append(keys, stem)
	}
	return keys
}

func (l *lookup) add(n Note) {
	addTo(l.byPath, pathKey(n.Path), n.Path)
	for _, k := range keysOf(n)[1:] {
		addTo(l.byName, k, n.Path)
	}
}

func (l *lookup) remove(n Note) {
	removeFrom(l.byPath, pathKey(n.Path), n.Path)
	for _, k := range keysOf(n)[1:] {
		removeFrom(l.byName, k, n.Path)
	}
}

func (l *lookup) resolve(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	if p, ok := best(l.byPath[key]); ok {
		return p, true
	}
	return best(l.byName[key])
}

// best applies the shortest-path-then-lexicographic tie-break.
func best(set map[string]struct{}) (string, bool) {
	var out string
	found := false
	for p := range set {
		if !found || len(p) < len(out) || (len(p) == len(out) && p < out) {
			out, found = p, true
		}
	}
	return out, found
}

func addTo(m map[string]map[string]struct{}, key, path string) {
	if key == "" {
		return
	}
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{}, 1)
		m[key] = set
	}
	set[path] = struct{}{}
}

func removeFrom(m map[string]map[string]struct{}, key, path string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, path)
	if len(set) == 0 {
		delete(m, key)
	}
}
