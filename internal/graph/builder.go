package graph

import "sort"

type edgeKey struct {
	source, target, alias string
}

// BuildGraph assembles the full graph: one node per note, one node per
// concept, direct edges for resolved links and concept edges for unresolved
// ones. Duplicate edges collapse on (source, target, alias).
func BuildGraph(ix *Index, concepts []ConceptNode) *Graph {
	meta := make(map[string]ConceptNode, len(concepts))
	nodes := make([]GraphNode, 0, ix.Len()+len(concepts))
	for _, p := range ix.Paths() {
		n, _ := ix.Note(p)
		nodes = append(nodes, GraphNode{ID: p, Label: n.Title, Path: p, Kind: NodeNote})
	}
	for _, c := range concepts {
		meta[c.ID] = c
		nodes = append(nodes, GraphNode{ID: c.ID, Label: c.Label, Kind: NodeConcept})
	}

	seen := map[edgeKey]struct{}{}
	var edges []GraphEdge
	for _, p := range ix.Paths() {
		for _, l := range ix.outgoing[p] {
			e := GraphEdge{Source: p, Alias: l.Alias}
			switch r := l.Resolution.(type) {
			case Resolved:
				e.Target, e.Kind = r.TargetPath, EdgeDirect
			case Unresolved:
				id := ConceptPrefix + r.ConceptName
				if _, ok := meta[id]; !ok {
					continue
				}
				e.Target, e.Kind, e.Concept = id, EdgeConcept, r.ConceptName
			}
			k := edgeKey{source: e.Source, target: e.Target, alias: e.Alias}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			edges = append(edges, e)
		}
	}
	return assemble(nodes, edges, meta)
}

// assemble sorts nodes and edges and re-derives connection counts and the
// concept list from edges. meta supplies concept names and labels.
func assemble(nodes []GraphNode, edges []GraphEdge, meta map[string]ConceptNode) *Graph {
	conn := make(map[string]int, len(nodes))
	used := map[string]map[string]struct{}{}
	for _, e := range edges {
		conn[e.Source]++
		if e.Target != e.Source {
			conn[e.Target]++
		}
		if e.Kind != EdgeConcept {
			continue
		}
		notes, ok := used[e.Target]
		if !ok {
			notes = map[string]struct{}{}
			used[e.Target] = notes
		}
		notes[e.Source] = struct{}{}
	}

	g := Empty()
	for _, n := range nodes {
		n.Connections = conn[n.ID]
		g.Nodes = append(g.Nodes, n)
	}
	g.Edges = append(g.Edges, edges...)
	for id, notes := range used {
		c := meta[id]
		c.ID = id
		c.Notes = sortedKeys(notes)
		c.Count = len(c.Notes)
		g.Concepts = append(g.Concepts, c)
	}

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool { return edgeLess(g.Edges[i], g.Edges[j]) })
	sort.Slice(g.Concepts, func(i, j int) bool { return g.Concepts[i].ID < g.Concepts[j].ID })
	return g
}

func edgeLess(a, b GraphEdge) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Target != b.Target {
		return a.Target < b.Target
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Concept != b.Concept {
		return a.Concept < b.Concept
	}
	return a.Alias < b.Alias
}

func conceptMeta(g *Graph) map[string]ConceptNode {
	meta := make(map[string]ConceptNode, len(g.Concepts))
	for _, c := range g.Concepts {
		meta[c.ID] = c
	}
	return meta
}
