package graph

import "sort"

// SynthesizeConcepts groups the unresolved references of ix by normalized
// name. The label is the display text of the first reference in source path
// and document order; Count is the number of distinct notes referencing the
// name, so repeated or aliased mentions within one note count once. The result is sorted by ID and depends only on ix.
func SynthesizeConcepts(ix *Index) []ConceptNode {
	type acc struct {
		node  ConceptNode
		notes map[string]struct{}
	}
	byName := map[string]*acc{}
	for _, l := range ix.Unresolved() {
		u := l.Resolution.(Unresolved)
		a, ok := byName[u.ConceptName]
		if !ok {
			a = &acc{
				node: ConceptNode{
					ID:    ConceptPrefix + u.ConceptName,
					Name:  u.ConceptName,
					Label: displayName(l.Target),
				},
				notes: map[string]struct{}{},
			}
			byName[u.ConceptName] = a
		}
		a.notes[l.Source] = struct{}{}
	}

	out := make([]ConceptNode, 0, len(byName))
	for _, a := range byName {
		a.node.Notes = sortedKeys(a.notes)
		a.node.Count = len(a.node.Notes)
		out = append(out, a.node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
