package graph

import "strings"

// NormalizeTarget turns a raw reference target into its lookup key: the
// anchor suffix is stripped, separators become "/", leading "/" and "./"
// and a trailing ".md" are removed, and the result is case-folded.
func NormalizeTarget(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return normalizeKey(raw)
}

// pathKey is the lookup key of a vault path.
func pathKey(p string) string {
	return normalizeKey(p)
}

func normalizeKey(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\\", "/"))
	for strings.HasPrefix(s, "./") || strings.HasPrefix(s, "/") {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "./"), "/")
	}
	if len(s) >= 3 && strings.EqualFold(s[len(s)-3:], ".md") {
		s = s[:len(s)-3]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// displayName is the human form of a raw target: anchor stripped, trimmed.
func displayName(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}
