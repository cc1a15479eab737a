package graph

import (
	"fmt"
	"strings"
)

// Filters scope and trim a graph before it is returned.
type Filters struct {
	Folder           string `json:"folder,omitempty"`
	Tag              string `json:"tag,omitempty"`
	ShowConceptLinks bool   `json:"show_concept_links"`
	ShowOrphans      bool   `json:"show_orphans"`
}

// DefaultFilters shows everything.
func DefaultFilters() Filters {
	return Filters{ShowConceptLinks: true, ShowOrphans: true}
}

// Key is a stable fingerprint of f for cache keys.
func (f Filters) Key() string {
	return fmt.Sprintf("folder=%s;tag=%s;concepts=%t;orphans=%t",
		normalizeFolder(f.Folder), normalizeTag(f.Tag), f.ShowConceptLinks, f.ShowOrphans)
}

// ApplyFilters returns a filtered copy of g. tags maps note paths to their
// tags and is consulted only when f.Tag is set. The input is not modified.
func ApplyFilters(g *Graph, f Filters, tags map[string][]string) *Graph {
	return applyFilters(g, f, tags, "")
}

// applyFilters keeps pinned even when the scope or orphan rules would drop
// it. An empty pinned keeps nothing extra.
func applyFilters(g *Graph, f Filters, tags map[string][]string, pinned string) *Graph {
	folder := normalizeFolder(f.Folder)
	tag := normalizeTag(f.Tag)

	keep := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		switch {
		case n.Kind == NodeConcept, n.ID == pinned:
			keep[n.ID] = true
		case folder != "" && !strings.HasPrefix(n.Path, folder+"/"):
		case tag != "" && !hasTag(tags[n.Path], tag):
		default:
			keep[n.ID] = true
		}
	}

	var edges []GraphEdge
	touched := map[string]bool{}
	for _, e := range g.Edges {
		if !keep[e.Source] || !keep[e.Target] {
			continue
		}
		if e.Kind == EdgeConcept && !f.ShowConceptLinks {
			continue
		}
		edges = append(edges, e)
		touched[e.Source] = true
		touched[e.Target] = true
	}

	var nodes []GraphNode
	for _, n := range g.Nodes {
		if !keep[n.ID] {
			continue
		}
		if !touched[n.ID] && n.ID != pinned && (n.Kind == NodeConcept || !f.ShowOrphans) {
			continue
		}
		nodes = append(nodes, n)
	}
	return assemble(nodes, edges, conceptMeta(g))
}

func normalizeFolder(s string) string {
	return strings.Trim(strings.ReplaceAll(strings.TrimSpace(s), "\\", "/"), "/")
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}

// hasTag matches tag exactly or as the parent of a nested tag.
func hasTag(noteTags []string, tag string) bool {
	for _, t := range noteTags {
		t = normalizeTag(t)
		if t == tag || strings.HasPrefix(t, tag+"/") {
			return true
		}
	}
	return false
}
