package graph

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lattice/internal/apperr"
)

// MaxDepth bounds local graph traversal.
const MaxDepth = 3

// ValidateDepth rejects depths outside 1..MaxDepth.
func ValidateDepth(depth int) error {
	if err := validation.Validate(depth, validation.Required, validation.Min(1), validation.Max(MaxDepth)); err != nil {
		return fmt.Errorf("graph: depth %d: %v: %w", depth, err, apperr.ErrInvalidDepth)
	}
	return nil
}

// LocalGraph returns the neighborhood of center within depth hops, treating
// every edge as undirected. Edges are kept when both endpoints are kept, and
// connections and concepts are re-derived from those edges.
func LocalGraph(g *Graph, center string, depth int) (*Graph, error) {
	if err := ValidateDepth(depth); err != nil {
		return nil, err
	}
	c, ok := g.Node(center)
	if !ok || c.Kind != NodeNote {
		return nil, fmt.Errorf("graph: local %s: %w", center, apperr.ErrNotFound)
	}

	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		if e.Target != e.Source {
			adj[e.Target] = append(adj[e.Target], e.Source)
		}
	}

	dist := map[string]int{center: 0}
	frontier := []string{center}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj[id] {
				if _, seen := dist[nb]; !seen {
					dist[nb] = d
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}

	var nodes []GraphNode
	for _, n := range g.Nodes {
		if _, ok := dist[n.ID]; ok {
			nodes = append(nodes, n)
		}
	}
	var edges []GraphEdge
	for _, e := range g.Edges {
		_, okS := dist[e.Source]
		_, okT := dist[e.Target]
		if okS && okT {
			edges = append(edges, e)
		}
	}
	return assemble(nodes, edges, conceptMeta(g)), nil
}

// FilteredLocalGraph applies f to g and then takes the neighborhood of center
// within depth hops. Hops only cross edges that survive f, so hiding concept
// links also hides notes reachable only through a concept. The center is
// kept even when f would exclude it.
func FilteredLocalGraph(g *Graph, center string, depth int, f Filters, tags map[string][]string) (*Graph, error) {
	if err := ValidateDepth(depth); err != nil {
		return nil, err
	}
	if c, ok := g.Node(center); !ok || c.Kind != NodeNote {
		return nil, fmt.Errorf("graph: local %s: %w", center, apperr.ErrNotFound)
	}
	return LocalGraph(applyFilters(g, f, tags, center), center, depth)
}
