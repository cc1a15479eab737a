package parser

import (
	"path"
	"regexp"
	"strings"
)

// wikilinkRe matches one [[...]] span on a single line. Brackets are not
// allowed inside the span so that [[[x]]] array syntax never matches.
var wikilinkRe = regexp.MustCompile(`(!?)\[\[([^\[\]]+)\]\]`)

// Reference is one [[wikilink]] found in a note body.
type Reference struct {
	// Target is the identifier as written, anchor included ("Project X#Plan").
	Target string `json:"target"`
	// Alias is the display text after "|", empty when absent.
	Alias string `json:"alias,omitempty"`
	// Anchor is the heading or block id after "#" ("Plan", "^abc123").
	Anchor string `json:"anchor,omitempty"`
	Line   int    `json:"line"`
	Embed  bool   `json:"embed,omitempty"`
}

// ExtractReferences returns the wikilinks of text in document order.
//
// Links inside fenced code blocks and inline code spans are ignored.
// Malformed spans (empty target, a target that only carries an anchor, a
// span broken by a newline) are dropped silently. Embeds of non-Markdown
// attachments (![[image.png]]) are not references.
func ExtractReferences(text string) []Reference {
	if !strings.Contains(text, "[[") {
		return nil
	}
	var out []Reference
	var fence fenceState
	for i, line := range strings.Split(text, "\n") {
		if fence.update(line) || fence.inFence {
			continue
		}
		if !strings.Contains(line, "[[") {
			continue
		}
		clean := blankInlineCode(line)
		for _, m := range wikilinkRe.FindAllStringSubmatchIndex(clean, -1) {
			start := m[0]
			if start > 0 && clean[start-1] == '[' {
				continue
			}
			ref, ok := parseInner(clean[m[4]:m[5]])
			if !ok {
				continue
			}
			ref.Line = i + 1
			ref.Embed = m[3] > m[2]
			if ref.Embed && isAttachment(ref.Target) {
				continue
			}
			out = append(out, ref)
		}
	}
	return out
}

// parseInner splits "target#anchor|alias" into its parts.
func parseInner(inner string) (Reference, bool) {
	target := inner
	var alias string
	if i := strings.IndexByte(inner, '|'); i >= 0 {
		target, alias = inner[:i], strings.TrimSpace(inner[i+1:])
	}
	target = strings.TrimSpace(target)
	var anchor string
	if i := strings.IndexByte(target, '#'); i >= 0 {
		anchor = strings.TrimSpace(target[i+1:])
		if strings.TrimSpace(target[:i]) == "" {
			return Reference{}, false
		}
	}
	if target == "" {
		return Reference{}, false
	}
	return Reference{Target: target, Alias: alias, Anchor: anchor}, true
}

func isAttachment(target string) bool {
	name := target
	if i := strings.IndexByte(name, '#'); i >= 0 {
		name = name[:i]
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(name)))
	return ext != "" && ext != ".md"
}
