package tracker

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Excluder decides which workspace-relative paths are never tracked.
type Excluder struct {
	dirs     map[string]struct{}
	patterns []glob.Glob
}

// NewExcluder builds an Excluder from directory names and glob patterns.
// Patterns use '/' as separator and are matched against the full relative
// path and against the base name.
func NewExcluder(dirs, patterns []string) (*Excluder, error) {
	e := &Excluder{dirs: make(map[string]struct{}, len(dirs))}

	for _, d := range dirs {
		d = strings.Trim(d, "/")
		if d != "" {
			e.dirs[d] = struct{}{}
		}
	}

	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, g)
	}

	return e, nil
}

// Excluded reports whether a '/'-separated relative file path is excluded:
// one of its parent directories has an excluded name, or it matches a pattern.
func (e *Excluder) Excluded(rel string) bool {
	if e == nil {
		return false
	}

	segments := strings.Split(rel, "/")
	for _, seg := range segments[:len(segments)-1] {
		if _, ok := e.dirs[seg]; ok {
			return true
		}
	}

	return e.matches(rel)
}

// ExcludedDir reports whether a relative directory path should not be
// descended into.
func (e *Excluder) ExcludedDir(rel string) bool {
	if e == nil || rel == "" || rel == "." {
		return false
	}

	for _, seg := range strings.Split(rel, "/") {
		if _, ok := e.dirs[seg]; ok {
			return true
		}
	}

	return e.matches(rel)
}

func (e *Excluder) matches(rel string) bool {
	base := path.Base(rel)
	for _, g := range e.patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}
