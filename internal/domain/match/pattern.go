// Package match implements glob/template path matching for route patterns.
//
// Patterns are sequences of `/`-separated segments. A segment is either a
// literal, a single-segment wildcard `*`, a multi-segment wildcard `**`, or a
// named variable `{name}` that captures exactly one segment. Matching is
// case-sensitive.
package match

import (
	"fmt"
	"strings"
)

const (
	segStar     = "*"
	segStarStar = "**"
	varOpen     = '{'
	varClose    = '}'
)

// Match attempts to match path against pattern, returning the captured path
// variables on success. Both pattern and path are `/`-separated.
func Match(pattern, path string) (map[string]string, bool) {
	patternSegs := splitSegments(pattern)
	pathSegs := splitSegments(path)
	vars := make(map[string]string)
	if matchSegments(patternSegs, pathSegs, vars) {
		return vars, true
	}
	return nil, false
}

// matchSegments recursively matches pattern segments against path segments.
// `**` is the only construct that can change the number of consumed path
// segments, so it is the only point requiring backtracking.
func matchSegments(pattern, path []string, vars map[string]string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}

	head, rest := pattern[0], pattern[1:]

	if head == segStarStar {
		// Zero or more path segments. Try the shortest match first so that
		// a trailing literal pattern still binds to the last segments.
		for consumed := 0; consumed <= len(path); consumed++ {
			if matchSegments(rest, path[consumed:], vars) {
				return true
			}
		}
		return false
	}

	if len(path) == 0 {
		return false
	}

	switch {
	case head == segStar:
		return matchSegments(rest, path[1:], vars)
	case isVariable(head):
		name := head[1 : len(head)-1]
		vars[name] = path[0]
		return matchSegments(rest, path[1:], vars)
	default:
		if head != path[0] {
			return false
		}
		return matchSegments(rest, path[1:], vars)
	}
}

// Rewrite applies vars to template, replacing each `{name}` segment with its
// captured value. Non-variable segments are left untouched.
func Rewrite(template string, vars map[string]string) (string, error) {
	segs := splitSegments(template)
	out := make([]string, len(segs))
	for i, seg := range segs {
		if !isVariable(seg) {
			out[i] = seg
			continue
		}
		name := seg[1 : len(seg)-1]
		val, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("match: rewrite template references unknown variable %q", name)
		}
		out[i] = val
	}
	rewritten := strings.Join(out, "/")
	if strings.HasPrefix(template, "/") && !strings.HasPrefix(rewritten, "/") {
		rewritten = "/" + rewritten
	}
	return rewritten, nil
}

// TemplateVariables returns the set of variable names referenced by a
// rewrite template, in order of first appearance.
func TemplateVariables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, seg := range splitSegments(template) {
		if isVariable(seg) {
			name := seg[1 : len(seg)-1]
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// ValidateRewriteTemplate checks that every `{name}` in template appears at
// most once and that every variable is among the pattern's captured names.
func ValidateRewriteTemplate(pattern, template string) error {
	patternVars := make(map[string]bool)
	for _, seg := range splitSegments(pattern) {
		if isVariable(seg) {
			patternVars[seg[1:len(seg)-1]] = true
		}
	}

	seen := make(map[string]bool)
	for _, seg := range splitSegments(template) {
		if !isVariable(seg) {
			continue
		}
		name := seg[1 : len(seg)-1]
		if seen[name] {
			return fmt.Errorf("match: variable %q appears more than once in rewrite template %q", name, template)
		}
		seen[name] = true
		if !patternVars[name] {
			return fmt.Errorf("match: rewrite template %q references variable %q not captured by pattern %q", template, name, pattern)
		}
	}
	return nil
}

func isVariable(seg string) bool {
	return len(seg) >= 2 && seg[0] == varOpen && seg[len(seg)-1] == varClose
}

// splitSegments normalizes and splits a `/`-path into non-empty segments.
// A leading slash is implied; "", "/" and nil all split to an empty slice.
func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// SplitPath exposes the same segment-splitting normalization as Match, for
// callers that need to reason about individual segments (e.g. longest
// literal-prefix comparisons).
func SplitPath(p string) []string {
	return splitSegments(p)
}

// NormalizePath ensures path begins with "/", treating "" as "/".
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

// MethodMatches reports whether method is contained in methods, comparing
// case-insensitively. A single "*" entry matches any method.
func MethodMatches(methods []string, method string) bool {
	for _, m := range methods {
		if m == segStar {
			return true
		}
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
