package scanner

import (
	"path/filepath"
	"strings"

	"github.com/IGLOU-EU/go-wildcard"
)

// pathMatcher tests directories against exclude or include patterns in
// order.
//
//   - a pattern without a slash matches the directory name ("node_modules", "build*")
//   - a pattern with a slash matches the slash-separated path relative to
//     the scan root ("vendor/*", "**/generated"); a leading "**/" also
//     matches the name alone, so it applies at the root too
//   - an absolute pattern matches the absolute path
//
// Patterns without wildcards compare literally. Directories outside the
// root (reached through symlinks) have no relative path and only match
// name and absolute patterns.
type pathMatcher struct {
	patterns []string
}

func newPathMatcher(patterns []string) pathMatcher {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p != "/" {
			p = strings.TrimSuffix(filepath.ToSlash(p), "/")
		}
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return pathMatcher{patterns: cleaned}
}

func (m pathMatcher) empty() bool { return len(m.patterns) == 0 }

// match returns the first pattern matching the directory. rel is "." for
// the root and "" outside it.
func (m pathMatcher) match(abs, rel, name string) (string, bool) {
	abs = filepath.ToSlash(abs)
	for _, p := range m.patterns {
		switch {
		case strings.HasPrefix(p, "/"):
			if matchPattern(p, abs) {
				return p, true
			}
		case !strings.Contains(p, "/"):
			if matchPattern(p, name) {
				return p, true
			}
		default:
			if rel != "" && matchPattern(p, rel) {
				return p, true
			}
			if rest, ok := strings.CutPrefix(p, "**/"); ok {
				if matchPattern(rest, name) || (rel != "" && matchPattern(rest, rel)) {
					return p, true
				}
			}
		}
	}
	return "", false
}

func matchPattern(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == s
	}
	return wildcard.Match(pattern, s)
}
