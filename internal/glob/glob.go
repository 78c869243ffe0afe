// Package glob implements the pattern language shared by the path
// resolver, the pipeline readers, and the file watcher: * and ? within a
// path segment, ** for any number of segments.
package glob

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Match reports whether a slash-separated path matches a glob pattern.
// Within a segment * and ? behave like path.Match; a bare ** segment
// matches any number of directories, including none.
func Match(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

// Root returns the longest literal directory prefix of a pattern.
func Root(pattern string) string {
	segments := strings.Split(pattern, "/")
	root := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.ContainsAny(seg, "*?[") {
			break
		}
		root = append(root, seg)
	}
	if len(root) == len(segments) && len(root) > 0 {
		// Literal path: its parent directory is the root.
		root = root[:len(root)-1]
	}
	return strings.Join(root, "/")
}

// Expand resolves patterns against a directory tree and returns the
// matching file paths, slash-separated and relative to dir. Results keep
// pattern order; matches within one pattern are sorted, and a path never
// appears twice.
func Expand(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		base := filepath.Join(dir, filepath.FromSlash(Root(pattern)))
		var matches []string
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				// A pattern over a missing directory matches nothing.
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if !Match(pattern, rel) {
				return nil
			}
			if _, dup := seen[rel]; dup {
				return nil
			}
			seen[rel] = struct{}{}
			matches = append(matches, rel)
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

func matchSegments(pattern, path []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			if matchSegments(pattern[1:], path) {
				return true
			}
			if len(path) == 0 {
				return false
			}
			path = path[1:]
			continue
		}
		if len(path) == 0 {
			return false
		}
		if !matchSegment(pattern[0], path[0]) {
			return false
		}
		pattern = pattern[1:]
		path = path[1:]
	}
	return len(path) == 0
}

func matchSegment(pattern, segment string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == segment
	}
	return wildcardMatch(pattern, segment)
}

func wildcardMatch(pattern, s string) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
