package index

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/lattice/internal/parser"
)

const snippetRadius = 60

// Mention is a plain-text occurrence of a note title that is not a wikilink.
type Mention struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

// UnlinkedMentions finds occurrences of title in other notes that are not
// already wikilinks. Matching is case-insensitive on whole words and ignores
// code. Results are ordered by path and line; limit <= 0 means 100.
func (db *DB) UnlinkedMentions(title, excludePath string, limit int) ([]Mention, error) {
	title = strings.TrimSpace(title)
	out := []Mention{}
	if title == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 100
	}

	// SQLite's LIKE folds ASCII case only, so it can narrow the scan for
	// ASCII titles but would miss "über" when looking for "Über".
	query := `SELECT path, title, body FROM notes WHERE path != ?`
	args := []any{excludePath}
	if isASCII(title) {
		query += ` AND body LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(title)+"%")
	}
	rows, err := db.conn.Query(query+` ORDER BY path`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: unlinked mentions: %w", err)
	}
	defer rows.Close()

	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(title))
	for rows.Next() {
		var p, t, body string
		if err := rows.Scan(&p, &t, &body); err != nil {
			return nil, err
		}
		for _, m := range findMentions(re, body) {
			m.Path, m.Title = p, t
			out = append(out, m)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, rows.Err()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// findMentions returns at most one mention per line.
func findMentions(re *regexp.Regexp, body string) []Mention {
	var out []Mention
	raw := strings.Split(body, "\n")
	for i, line := range parser.PlainLines(body) {
		for _, loc := range re.FindAllStringIndex(line, -1) {
			if !wordBoundary(line, loc[0], loc[1]) {
				continue
			}
			out = append(out, Mention{Line: i + 1, Snippet: snippet(raw[i], loc[0], loc[1])})
			break
		}
	}
	return out
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWord(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWord(r) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func snippet(line string, start, end int) string {
	from, to := start-snippetRadius, end+snippetRadius
	prefix, suffix := "...", "..."
	if from <= 0 {
		from, prefix = 0, ""
	}
	if to >= len(line) {
		to, suffix = len(line), ""
	}
	for from > 0 && !utf8.RuneStart(line[from]) {
		from--
	}
	for to < len(line) && !utf8.RuneStart(line[to]) {
		to++
	}
	return prefix + strings.TrimSpace(line[from:to]) + suffix
}
