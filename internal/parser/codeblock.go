package parser

import "strings"

// fenceState tracks whether a line scanner is inside a fenced code block.
type fenceState struct {
	inFence bool
	ch      byte
	n       int
}

// update consumes one line and reports whether it was a fence marker.
// Leading indentation and blockquote prefixes are tolerated.
func (s *fenceState) update(line string) bool {
	l := strings.TrimLeft(line, " \t")
	for strings.HasPrefix(l, ">") {
		l = strings.TrimLeft(strings.TrimPrefix(l, ">"), " \t")
	}
	if len(l) < 3 || (l[0] != '`' && l[0] != '~') {
		return false
	}
	ch := l[0]
	n := 0
	for n < len(l) && l[n] == ch {
		n++
	}
	if n < 3 {
		return false
	}
	if !s.inFence {
		s.inFence, s.ch, s.n = true, ch, n
		return true
	}
	// A closing fence uses the same character, is at least as long as the
	// opener and carries no info string.
	if ch == s.ch && n >= s.n && strings.TrimSpace(l[n:]) == "" {
		s.inFence, s.ch, s.n = false, 0, 0
		return true
	}
	return false
}

// blankInlineCode replaces inline code spans with spaces so that byte
// offsets in the line are preserved. An opening backtick run is closed only
// by a run of the same length; unmatched runs are left untouched.
func blankInlineCode(line string) string {
	if strings.IndexByte(line, '`') < 0 {
		return line
	}
	b := []byte(line)
	i := 0
	for i < len(b) {
		if b[i] != '`' {
			i++
			continue
		}
		start := i
		for i < len(b) && b[i] == '`' {
			i++
		}
		open := i - start
		j := i
		closed := false
		for j < len(b) {
			if b[j] != '`' {
				j++
				continue
			}
			runStart := j
			for j < len(b) && b[j] == '`' {
				j++
			}
			if j-runStart == open {
				for k := start; k < j; k++ {
					b[k] = ' '
				}
				i = j
				closed = true
				break
			}
		}
		if !closed {
			i = start + open
		}
	}
	return string(b)
}

// PlainLines splits text into lines with everything that is not prose
// blanked: fenced code lines become empty, and inline code spans and
// wikilinks are replaced by spaces. Line numbers and byte offsets match text.
func PlainLines(text string) []string {
	lines := strings.Split(text, "\n")
	var fence fenceState
	for i, line := range lines {
		if fence.update(line) || fence.inFence {
			lines[i] = ""
			continue
		}
		line = blankInlineCode(line)
		if strings.Contains(line, "[[") {
			line = wikilinkRe.ReplaceAllStringFunc(line, func(m string) string {
				return strings.Repeat(" ", len(m))
			})
		}
		lines[i] = line
	}
	return lines
}
