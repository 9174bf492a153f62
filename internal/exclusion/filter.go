// Package exclusion decides which files and directories stay out of an
// archive.
package exclusion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns is the built-in exclusion set: temporary files, VCS
// control directories, language and package-manager caches, IDE metadata,
// build output, OS metadata files and large disposable media.
var DefaultPatterns = []string{
	// temporary files
	"*.tmp", "*.temp", "*.swp", "*.swo", "*~", "*.bak",
	// version control
	".git", ".svn", ".hg", ".bzr",
	// caches
	"__pycache__", "*.pyc", "*.pyo", ".pytest_cache", ".mypy_cache",
	"node_modules", ".npm", ".yarn", ".venv", "venv", ".tox", ".cache", ".gradle",
	// IDE metadata
	".idea", ".vscode",
	// build output
	"dist", "build", "target", "*.egg-info",
	// OS metadata
	".DS_Store", "Thumbs.db", "desktop.ini",
	// large disposable media
	"*.iso", "*.img", "*.dmg", "*.mp4", "*.mkv", "*.avi", "*.mov",
}

type kind int

const (
	kindExact kind = iota
	kindGlob
	kindPath
)

type matcher struct {
	pattern string
	kind    kind
	dirOnly bool
	glob    glob.Glob
}

func (m matcher) match(entryPath, entryName string, isDir bool) bool {
	if m.dirOnly && !isDir {
		return false
	}
	switch m.kind {
	case kindExact:
		return entryName == m.pattern
	case kindGlob:
		return m.glob.Match(entryName)
	case kindPath:
		return strings.Contains("/"+filepath.ToSlash(entryPath)+"/", "/"+m.pattern+"/")
	}
	return false
}

// Filter is an ordered list of compiled exclusion matchers. It is built once
// per operation and is safe for concurrent reads.
type Filter struct {
	patterns []string
	matchers []matcher
}

// New merges the given pattern lists in order into a single Filter,
// dropping empty and duplicate patterns. Callers usually pass
// DefaultPatterns, the configured custom list and any ad-hoc patterns.
func New(lists ...[]string) (*Filter, error) {
	f := &Filter{}
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}

			m, err := compile(p)
			if err != nil {
				return nil, err
			}
			f.patterns = append(f.patterns, p)
			f.matchers = append(f.matchers, m)
		}
	}
	return f, nil
}

// ParseList splits a comma separated pattern list such as "*.iso,Downloads".
func ParseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func compile(pattern string) (matcher, error) {
	m := matcher{pattern: pattern}
	if strings.HasSuffix(pattern, "/") {
		m.dirOnly = true
		m.pattern = strings.TrimRight(pattern, "/")
	}
	switch {
	case strings.Contains(m.pattern, "/"):
		m.kind = kindPath
	case strings.ContainsAny(m.pattern, "*?["):
		g, err := glob.Compile(m.pattern)
		if err != nil {
			return matcher{}, fmt.Errorf("compile exclusion pattern %q: %w", pattern, err)
		}
		m.kind = kindGlob
		m.glob = g
	default:
		m.kind = kindExact
	}
	if m.pattern == "" {
		return matcher{}, fmt.Errorf("empty exclusion pattern %q", pattern)
	}
	return m, nil
}

// ShouldExclude reports whether the entry at entryPath (base name
// entryName) is skipped. entryPath is relative to the source root, so
// multi-segment patterns never match the directories above it; they match
// whole path segments only. A directory for which this returns true is pruned
// with its whole subtree.
func (f *Filter) ShouldExclude(entryPath, entryName string, isDir bool) bool {
	if f == nil {
		return false
	}
	for _, m := range f.matchers {
		if m.match(entryPath, entryName, isDir) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the active patterns in evaluation order.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}

// Len returns the number of active patterns.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}
