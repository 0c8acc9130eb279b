// Package util holds small path helpers shared by the planner and the CLI.
package util

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// MatchesPattern reports whether a slash-separated path relative to the input
// root matches a gitignore-style glob. A pattern containing no '/' and not
// rooted may match at any depth; otherwise it is anchored to the root. A "**"
// segment matches zero or more path segments.
func MatchesPattern(pattern, relPath string, rooted bool) bool {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if pattern == "" || relPath == "" || relPath == "." {
		return false
	}
	patternSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(relPath, "/")

	if rooted || len(patternSegs) > 1 {
		return matchSegments(patternSegs, pathSegs)
	}
	for i := range pathSegs {
		if matchSegments(patternSegs, pathSegs[i:]) {
			return true
		}
	}
	return false
}

// ValidatePattern returns an error for malformed glob syntax.
func ValidatePattern(pattern string) error {
	for _, seg := range strings.Split(strings.Trim(filepath.ToSlash(pattern), "/!"), "/") {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}
