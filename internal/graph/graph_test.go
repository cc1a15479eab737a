package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lattice/internal/apperr"
)

func fullGraph(t *testing.T, notes ...Note) *Graph {
	t.Helper()
	ix := build(t, notes...)
	return BuildGraph(ix, SynthesizeConcepts(ix))
}

func nodeIDs(g *Graph) []string {
	out := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestBuildGraph_Scenario(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "A.md", Title: "A", Text: "see [[B]] and [[C]]"},
		Note{Path: "B.md", Title: "B"},
	)

	assert.Equal(t, []string{"A.md", "B.md", "concept:c"}, nodeIDs(g))
	require.Len(t, g.Edges, 2)
	assert.Equal(t, GraphEdge{Source: "A.md", Target: "B.md", Kind: EdgeDirect}, g.Edges[0])
	assert.Equal(t, GraphEdge{Source: "A.md", Target: "concept:c", Kind: EdgeConcept, Concept: "c"}, g.Edges[1])

	a, _ := g.Node("A.md")
	assert.Equal(t, 2, a.Connections)
	c, _ := g.Node("concept:c")
	assert.Equal(t, NodeConcept, c.Kind)
	assert.Equal(t, "C", c.Label)
	assert.Empty(t, c.Path)

	require.Len(t, g.Concepts, 1)
	assert.Equal(t, ConceptNode{ID: "concept:c", Name: "c", Label: "C", Notes: []string{"A.md"}, Count: 1}, g.Concepts[0])
}

func TestBuildGraph_Idempotent(t *testing.T) {
	notes := []Note{
		{Path: "z.md", Text: "[[a]] [[Missing]] [[missing|m]] [[z]]"},
		{Path: "a.md", Text: "[[z]] [[Other thing]]"},
		{Path: "m/q.md", Text: "[[a|A]] [[a]] [[a]]"},
	}
	first, err := json.Marshal(fullGraph(t, notes...))
	require.NoError(t, err)
	second, err := json.Marshal(fullGraph(t, notes...))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestBuildGraph_DedupByAlias(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "a.md"},
		Note{Path: "q.md", Text: "[[a]] [[a]] [[a|A]]"},
	)
	assert.Len(t, g.Edges, 2)
	q, _ := g.Node("q.md")
	assert.Equal(t, 2, q.Connections)
}

func TestBuildGraph_SelfLoopCountsOnce(t *testing.T) {
	g := fullGraph(t, Note{Path: "a.md", Text: "[[a]]"})
	a, _ := g.Node("a.md")
	assert.Equal(t, 1, a.Connections)
}

func TestConceptLifecycle(t *testing.T) {
	x := Note{Path: "X.md", Text: "[[Bar]]"}
	y := Note{Path: "Y.md", Text: "[[Bar]]"}
	g := fullGraph(t, x, y)

	require.Len(t, g.Concepts, 1)
	assert.Equal(t, "concept:bar", g.Concepts[0].ID)
	assert.Equal(t, "Bar", g.Concepts[0].Label)
	assert.Equal(t, []string{"X.md", "Y.md"}, g.Concepts[0].Notes)
	assert.Len(t, g.Edges, 2)
	for _, e := range g.Edges {
		assert.Equal(t, EdgeConcept, e.Kind)
	}

	g = fullGraph(t, x, y, Note{Path: "Bar.md", Title: "Bar"})
	assert.Empty(t, g.Concepts)
	_, ok := g.Node("concept:bar")
	assert.False(t, ok)
	require.Len(t, g.Edges, 2)
	for _, e := range g.Edges {
		assert.Equal(t, EdgeDirect, e.Kind)
		assert.Equal(t, "Bar.md", e.Target)
	}
}

func TestSynthesizeConcepts_StableIDs(t *testing.T) {
	notes := []Note{{Path: "b.md", Text: "[[Idea]]"}, {Path: "a.md", Text: "[[idea#x]]"}}
	first := SynthesizeConcepts(build(t, notes...))
	second := SynthesizeConcepts(build(t, notes[1], notes[0]))
	assert.Equal(t, first, second)
	require.Len(t, first, 1)
	assert.Equal(t, "idea", first[0].Label)
	assert.Equal(t, 2, first[0].Count)
}

func TestSynthesizeConcepts_CountsDistinctNotes(t *testing.T) {
	ix := build(t,
		Note{Path: "X.md", Text: "[[Bar]] [[Bar|b]] [[Bar]]"},
		Note{Path: "Y.md", Text: "[[Bar]]"},
	)
	concepts := SynthesizeConcepts(ix)
	require.Len(t, concepts, 1)
	assert.Equal(t, []string{"X.md", "Y.md"}, concepts[0].Notes)
	assert.Equal(t, 2, concepts[0].Count)

	g := BuildGraph(ix, concepts)
	require.Len(t, g.Concepts, 1)
	assert.Equal(t, 2, g.Concepts[0].Count)

	out := ApplyFilters(g, DefaultFilters(), nil)
	require.Len(t, out.Concepts, 1)
	assert.Equal(t, 2, out.Concepts[0].Count)
}

func chain(t *testing.T) *Graph {
	return fullGraph(t,
		Note{Path: "A.md", Text: "[[B]]"},
		Note{Path: "B.md", Text: "[[C]]"},
		Note{Path: "C.md", Text: "[[D]]"},
		Note{Path: "D.md"},
		Note{Path: "E.md"},
	)
}

func TestLocalGraph_DepthBound(t *testing.T) {
	g := chain(t)

	l, err := LocalGraph(g, "A.md", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.md", "B.md", "C.md"}, nodeIDs(l))
	assert.Len(t, l.Edges, 2)
	c, _ := l.Node("C.md")
	assert.Equal(t, 1, c.Connections)

	l, err = LocalGraph(g, "A.md", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.md", "B.md"}, nodeIDs(l))

	l, err = LocalGraph(g, "D.md", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.md", "D.md"}, nodeIDs(l))
}

func TestLocalGraph_IsolatedCenter(t *testing.T) {
	l, err := LocalGraph(chain(t), "E.md", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"E.md"}, nodeIDs(l))
	assert.Empty(t, l.Edges)
}

func TestLocalGraph_ThroughConcept(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "a.md", Text: "[[Shared]]"},
		Note{Path: "b.md", Text: "[[shared]]"},
	)
	l, err := LocalGraph(g, "a.md", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "concept:shared"}, nodeIDs(l))

	l, err = LocalGraph(g, "a.md", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "concept:shared"}, nodeIDs(l))
	require.Len(t, l.Concepts, 1)
	assert.Equal(t, []string{"a.md"}, l.Concepts[0].Notes)
}

func TestLocalGraph_Errors(t *testing.T) {
	g := chain(t)
	for _, d := range []int{0, -1, 4} {
		_, err := LocalGraph(g, "A.md", d)
		assert.ErrorIs(t, err, apperr.ErrInvalidDepth, "depth %d", d)
	}
	_, err := LocalGraph(g, "nope.md", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	g2 := fullGraph(t, Note{Path: "a.md", Text: "[[x]]"})
	_, err = LocalGraph(g2, "concept:x", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFilteredLocalGraph_KeepsCenterOutsideScope(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "home/a.md", Text: "[[b]]"},
		Note{Path: "work/b.md", Text: "[[c]]"},
		Note{Path: "work/c.md"},
	)
	l, err := FilteredLocalGraph(g, "home/a.md", 2, Filters{Folder: "work", ShowConceptLinks: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"home/a.md", "work/b.md", "work/c.md"}, nodeIDs(l))

	l, err = FilteredLocalGraph(g, "home/a.md", 2, Filters{Folder: "archive", ShowConceptLinks: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"home/a.md"}, nodeIDs(l))
	assert.Empty(t, l.Edges)

	tags := map[string][]string{"work/b.md": {"project"}, "work/c.md": {"project"}}
	l, err = FilteredLocalGraph(g, "work/c.md", 2, Filters{Tag: "project", ShowConceptLinks: true, ShowOrphans: true}, tags)
	require.NoError(t, err)
	assert.Equal(t, []string{"work/b.md", "work/c.md"}, nodeIDs(l))

	l, err = FilteredLocalGraph(g, "home/a.md", 1, Filters{Tag: "project", ShowConceptLinks: true}, tags)
	require.NoError(t, err)
	assert.Equal(t, []string{"home/a.md", "work/b.md"}, nodeIDs(l))
}

func TestFilteredLocalGraph_HiddenConceptsDoNotLeaveStrays(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "a.md", Text: "[[Shared]] [[b]]"},
		Note{Path: "b.md"},
		Note{Path: "c.md", Text: "[[shared]]"},
	)
	l, err := FilteredLocalGraph(g, "a.md", 2, Filters{ShowConceptLinks: false, ShowOrphans: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, nodeIDs(l))
	for _, n := range l.Nodes {
		assert.Positive(t, n.Connections, n.ID)
	}
	assert.Empty(t, l.Concepts)

	l, err = FilteredLocalGraph(g, "a.md", 2, DefaultFilters(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "c.md", "concept:shared"}, nodeIDs(l))
}

func TestFilteredLocalGraph_Errors(t *testing.T) {
	g := chain(t)
	_, err := FilteredLocalGraph(g, "A.md", 0, DefaultFilters(), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidDepth)
	_, err = FilteredLocalGraph(g, "nope.md", 1, DefaultFilters(), nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApplyFilters_Ordering(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "only-concept.md", Text: "[[Ghost]]"},
		Note{Path: "a.md", Text: "[[b]]"},
		Note{Path: "b.md"},
	)

	f := Filters{ShowConceptLinks: false, ShowOrphans: false}
	out := ApplyFilters(g, f, nil)
	assert.Equal(t, []string{"a.md", "b.md"}, nodeIDs(out))
	assert.Empty(t, out.Concepts)

	f.ShowOrphans = true
	out = ApplyFilters(g, f, nil)
	assert.Equal(t, []string{"a.md", "b.md", "only-concept.md"}, nodeIDs(out))
	n, _ := out.Node("only-concept.md")
	assert.Equal(t, 0, n.Connections)

	// input untouched
	n, _ = g.Node("only-concept.md")
	assert.Equal(t, 1, n.Connections)
	assert.Len(t, g.Edges, 2)
}

func TestApplyFilters_Folder(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "work/a.md", Text: "[[b]] [[Todo]]"},
		Note{Path: "work/b.md"},
		Note{Path: "workshop/c.md", Text: "[[Todo]] [[a]]"},
		Note{Path: "home/d.md", Text: "[[Other]]"},
	)
	out := ApplyFilters(g, Filters{Folder: "/work/", ShowConceptLinks: true, ShowOrphans: true}, nil)
	assert.Equal(t, []string{"concept:todo", "work/a.md", "work/b.md"}, nodeIDs(out))
	require.Len(t, out.Concepts, 1)
	assert.Equal(t, []string{"work/a.md"}, out.Concepts[0].Notes)
	assert.Equal(t, 1, out.Concepts[0].Count)
}

func TestApplyFilters_Tag(t *testing.T) {
	g := fullGraph(t,
		Note{Path: "a.md", Text: "[[b]]"},
		Note{Path: "b.md", Text: "[[c]]"},
		Note{Path: "c.md"},
	)
	tags := map[string][]string{
		"a.md": {"Project"},
		"b.md": {"project/sub"},
		"c.md": {"other"},
	}
	out := ApplyFilters(g, Filters{Tag: "#project", ShowConceptLinks: true, ShowOrphans: true}, tags)
	assert.Equal(t, []string{"a.md", "b.md"}, nodeIDs(out))
	require.Len(t, out.Edges, 1)
	b, _ := out.Node("b.md")
	assert.Equal(t, 1, b.Connections)
}

func TestFiltersKey(t *testing.T) {
	assert.Equal(t, DefaultFilters().Key(), Filters{ShowConceptLinks: true, ShowOrphans: true}.Key())
	assert.Equal(t, Filters{Folder: "work/"}.Key(), Filters{Folder: "/work"}.Key())
	assert.NotEqual(t, DefaultFilters().Key(), Filters{ShowOrphans: true}.Key())
}

func TestResolutionJSON(t *testing.T) {
	ix, err := Build(context.Background(), []Note{
		{Path: "a.md", Text: "[[b|B]] [[c]]"},
		{Path: "b.md"},
	}, 1)
	require.NoError(t, err)
	data, err := json.Marshal(ix.Outgoing("a.md"))
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"source":"a.md","target":"b","alias":"B","line":1,"resolution":{"state":"resolved","target_path":"b.md"}},
		{"source":"a.md","target":"c","line":1,"resolution":{"state":"unresolved","concept":"c"}}
	]`, string(data))
}
