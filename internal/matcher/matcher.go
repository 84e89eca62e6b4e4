// Package matcher implements the glob include/exclude decision (C1): given a
// path relative to the watched root, decide whether it should be tracked.
//
// Grounded on original_source/src/config.rs's matches_path, generalized to
// full glob semantics (*, **, ?) for both includes and excludes per the
// specification — the original only does this for excludes and falls back to
// a simplified extension-suffix check for includes.
package matcher

import (
	"regexp"
	"runtime"
	"strings"
	"sync"
)

// Matcher decides inclusion/exclusion for forward-slash-normalized relative
// paths against a set of glob patterns.
type Matcher struct {
	patterns []string
	excludes []string

	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// New builds a Matcher from the watch.patterns include list and the
// watch.exclude list.
func New(patterns, excludes []string) *Matcher {
	return &Matcher{
		patterns: append([]string(nil), patterns...),
		excludes: append([]string(nil), excludes...),
		cache:    make(map[string]*regexp.Regexp),
	}
}

// Match reports whether relPath (forward-slash relative to the watched root)
// matches at least one include pattern and no exclude pattern.
func (m *Matcher) Match(relPath string) bool {
	relPath = Normalize(relPath)
	if m.excludedPath(relPath) {
		return false
	}
	base := relPath
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		base = relPath[i+1:]
	}
	for _, p := range m.patterns {
		subject := relPath
		if !strings.Contains(p, "/") {
			// A pattern with no slash is a basename pattern: it matches the
			// file at any depth, mirroring the default pattern list
			// ("*.rs", "*.md", ...) which is meant to track files
			// throughout the tree, not just at the watched root.
			subject = base
		}
		if m.compile(p).MatchString(subject) {
			return true
		}
	}
	return false
}

// ExcludedDir reports whether a directory (relative path, no trailing slash)
// should be pruned from descent. Excludes are evaluated against every
// ancestor prefix, so a directory is pruned both when its own path matches
// an exclude pattern and when the pattern is written against the
// conventional "<dir>/" trailing-slash form (e.g. "**/node_modules/**").
func (m *Matcher) ExcludedDir(relDirPath string) bool {
	relDirPath = Normalize(relDirPath)
	if relDirPath == "" {
		return false
	}
	return m.excludedPath(relDirPath) || m.excludedPath(relDirPath+"/")
}

func (m *Matcher) excludedPath(s string) bool {
	for _, p := range m.excludes {
		if m.compile(p).MatchString(s) {
			return true
		}
	}
	return false
}

func (m *Matcher) compile(pattern string) *regexp.Regexp {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.cache[pattern]; ok {
		return re
	}
	re := regexp.MustCompile(globToRegexp(pattern))
	m.cache[pattern] = re
	return re
}

// Normalize converts a path to forward slashes and trims a leading "./".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}

// globToRegexp translates a glob pattern supporting "*" (no-slash wildcard),
// "**" (any depth, including slashes) and "?" (single non-slash character)
// into an anchored regular expression. Matching is case-sensitive on Unix
// and case-insensitive on Windows, per the specification.
//
// "**" is handled by segment: a "**" segment matches zero or more whole path
// segments (so "**/node_modules/**" prunes "node_modules" at any depth,
// including the root), while "*" within a segment never crosses a slash.
func globToRegexp(pattern string) string {
	segments := strings.Split(pattern, "/")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "**" {
			parts = append(parts, "\x00DOUBLESTAR\x00")
			continue
		}
		parts = append(parts, segmentToRegexp(seg))
	}

	var b strings.Builder
	if runtime.GOOS == "windows" {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	for i, p := range parts {
		switch p {
		case "\x00DOUBLESTAR\x00":
			switch {
			case i == 0 && i == len(parts)-1:
				b.WriteString(".*")
			case i == 0:
				b.WriteString("(?:.*/)?")
			case i == len(parts)-1:
				b.WriteString("(?:/.*)?")
			default:
				b.WriteString("(?:/.*)?/")
			}
		default:
			if i > 0 && parts[i-1] != "\x00DOUBLESTAR\x00" {
				b.WriteString("/")
			}
			b.WriteString(p)
		}
	}
	b.WriteString("$")
	return b.String()
}

func segmentToRegexp(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '*':
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}
