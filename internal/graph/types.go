// Package graph implements the link graph: the resolution index over note
// references, concept synthesis, graph assembly, neighborhood extraction and
// filtering. Everything here is pure in-memory computation; callers own
// locking and I/O.
package graph

import (
	"encoding/json"

	"github.com/starford/lattice/internal/parser"
)

// Note is the engine's view of a vault note.
type Note struct {
	Path  string
	Title string
	Text  string
}

// Resolution is the resolution state of a reference: Resolved or Unresolved.
type Resolution interface {
	resolution()
}

// Resolved points at an existing note.
type Resolved struct {
	TargetPath string
}

// Unresolved names the concept the reference contributes to.
type Unresolved struct {
	ConceptName string
}

func (Resolved) resolution()   {}
func (Unresolved) resolution() {}

// MarshalJSON encodes the resolution with a "state" discriminator.
func (r Resolved) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State      string `json:"state"`
		TargetPath string `json:"target_path"`
	}{"resolved", r.TargetPath})
}

// MarshalJSON encodes the resolution with a "state" discriminator.
func (u Unresolved) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State   string `json:"state"`
		Concept string `json:"concept"`
	}{"unresolved", u.ConceptName})
}

// Link is one reference in a source note together with its resolution.
type Link struct {
	Source string `json:"source"`
	parser.Reference
	Resolution Resolution `json:"resolution"`
}

// TargetPath returns the resolved note path, if any.
func (l Link) TargetPath() (string, bool) {
	if r, ok := l.Resolution.(Resolved); ok {
		return r.TargetPath, true
	}
	return "", false
}

// NodeKind distinguishes note-backed from concept-backed nodes.
type NodeKind string

const (
	NodeNote    NodeKind = "note"
	NodeConcept NodeKind = "concept"
)

// EdgeKind distinguishes direct links from links to a concept.
type EdgeKind string

const (
	EdgeDirect  EdgeKind = "direct"
	EdgeConcept EdgeKind = "concept"
)

// ConceptPrefix prefixes every concept node id.
const ConceptPrefix = "concept:"

// GraphNode is a vertex of the graph.
type GraphNode struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Path        string   `json:"path"`
	Connections int      `json:"connections"`
	Kind        NodeKind `json:"kind"`
}

// GraphEdge is a directed edge. Concept is set for concept edges only.
type GraphEdge struct {
	Source  string   `json:"source"`
	Target  string   `json:"target"`
	Kind    EdgeKind `json:"kind"`
	Concept string   `json:"concept,omitempty"`
	Alias   string   `json:"alias,omitempty"`
}

// ConceptNode is a synthesized node for a target that no note resolves.
type ConceptNode struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Label string   `json:"label"`
	Notes []string `json:"notes"`
	Count int      `json:"count"`
}

// Graph is the payload exchanged with the rendering layer.
type Graph struct {
	Nodes    []GraphNode   `json:"nodes"`
	Edges    []GraphEdge   `json:"edges"`
	Concepts []ConceptNode `json:"concepts"`
	// Error carries a degraded-response message; the graph is empty then.
	Error string `json:"error,omitempty"`
}

// Empty returns a graph with non-nil, empty collections.
func Empty() *Graph {
	return &Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}, Concepts: []ConceptNode{}}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (GraphNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}
