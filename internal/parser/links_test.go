package parser

import (
	"testing"
)

func TestExtractReferences_Forms(t *testing.T) {
	text := "See [[Note A]] and [[Note B|alias]].\n" +
		"Heading [[Project X#Plan]] block [[Log#^abc123]] both [[C#H|shown]].\n" +
		"Again [[Note A]]."
	refs := ExtractReferences(text)

	want := []Reference{
		{Target: "Note A", Line: 1},
		{Target: "Note B", Alias: "alias", Line: 1},
		{Target: "Project X#Plan", Anchor: "Plan", Line: 2},
		{Target: "Log#^abc123", Anchor: "^abc123", Line: 2},
		{Target: "C#H", Alias: "shown", Anchor: "H", Line: 2},
		{Target: "Note A", Line: 3},
	}
	if len(refs) != len(want) {
		t.Fatalf("len(refs) = %d, want %d: %+v", len(refs), len(want), refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %+v, want %+v", i, refs[i], want[i])
		}
	}
}

func TestExtractReferences_SkipsCode(t *testing.T) {
	text := "before [[A]]\n" +
		"```go\n" +
		"x := \"[[B]]\"\n" +
		"```\n" +
		"inline `[[C]]` and ``[[D]] with ` tick`` then [[E]]\n" +
		"~~~~\n" +
		"[[F]]\n" +
		"~~~\n" +
		"[[G]]\n" +
		"~~~~\n" +
		"> ```\n" +
		"> [[H]]\n" +
		"> ```\n" +
		"after [[I]]"
	refs := ExtractReferences(text)
	var got []string
	for _, r := range refs {
		got = append(got, r.Target)
	}
	want := []string{"A", "E", "I"}
	if len(got) != len(want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("targets[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractReferences_UnclosedInlineCode(t *testing.T) {
	refs := ExtractReferences("a ` stray backtick [[A]]")
	if len(refs) != 1 || refs[0].Target != "A" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestExtractReferences_Malformed(t *testing.T) {
	cases := []string{
		"[[ ]]",
		"[[|alias]]",
		"[[#heading]]",
		"[[broken\nacross]]",
		"[[target|alias\nmore]]",
		"[[[array]]]",
		"[[unterminated",
		"![[diagram.png]]",
	}
	for _, c := range cases {
		if refs := ExtractReferences(c); len(refs) != 0 {
			t.Errorf("ExtractReferences(%q) = %+v, want none", c, refs)
		}
	}
}

func TestExtractReferences_NoteEmbed(t *testing.T) {
	refs := ExtractReferences("![[Other note]] and ![[Design.md#Intro]]")
	if len(refs) != 2 {
		t.Fatalf("refs = %+v", refs)
	}
	if !refs[0].Embed || refs[0].Target != "Other note" {
		t.Errorf("refs[0] = %+v", refs[0])
	}
	if refs[1].Target != "Design.md#Intro" || refs[1].Anchor != "Intro" {
		t.Errorf("refs[1] = %+v", refs[1])
	}
}

func TestExtractReferences_EmptyAliasDropped(t *testing.T) {
	refs := ExtractReferences("[[Target| ]]")
	if len(refs) != 1 || refs[0].Alias != "" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestExtractReferences_Concurrent(t *testing.T) {
	done := make(chan []Reference, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- ExtractReferences("x [[A]] y [[B|b]]") }()
	}
	for i := 0; i < 8; i++ {
		if refs := <-done; len(refs) != 2 {
			t.Errorf("refs = %+v", refs)
		}
	}
}

func TestPlainLines(t *testing.T) {
	text := "see [[Alpha]] and Alpha\n```\nAlpha\n```\n`Alpha` Alpha"
	lines := PlainLines(text)
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	if lines[0] != "see           and Alpha" {
		t.Errorf("line 1 = %q", lines[0])
	}
	if lines[2] != "" {
		t.Errorf("fenced line not blanked: %q", lines[2])
	}
	if lines[4] != "        Alpha" {
		t.Errorf("line 5 = %q", lines[4])
	}
}
