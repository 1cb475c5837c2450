// Package tracker keeps the set of workspace files changed since the last
// capture.
package tracker

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

// ErrOutsideWorkspace is returned for paths that are not inside the workspace root.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// Journal persists the dirty set so it survives a restart.
type Journal interface {
	Add(rel string) error
	Remove(rels ...string) error
	Load() ([]string, error)
}

// Tracker is a concurrency-safe dirty set of '/'-separated workspace-relative
// paths. Drain is atomic with respect to the Record methods, so a change
// recorded during a capture always lands in the next drain.
type Tracker struct {
	root     string
	mu       sync.Mutex
	dirty    map[string]struct{}
	excluder *Excluder
	journal  Journal
	log      *logging.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithExcluder sets the exclusion rules.
func WithExcluder(e *Excluder) Option {
	return func(t *Tracker) {
		t.excluder = e
	}
}

// WithJournal enables write-through persistence of the dirty set.
func WithJournal(j Journal) Option {
	return func(t *Tracker) {
		t.journal = j
	}
}

// New creates a tracker rooted at the absolute workspace root. If a journal
// is configured its entries are loaded into the set.
func New(root string, opts ...Option) (*Tracker, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("workspace root must be absolute: %s", root)
	}

	t := &Tracker{
		root:  filepath.Clean(root),
		dirty: make(map[string]struct{}),
		log:   logging.Get("tracker"),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.journal != nil {
		entries, err := t.journal.Load()
		if err != nil {
			return nil, fmt.Errorf("loading journal: %w", err)
		}
		var stale []string
		for _, rel := range entries {
			if !validRel(rel) || t.excluder.Excluded(rel) {
				stale = append(stale, rel)
				continue
			}
			t.dirty[rel] = struct{}{}
		}
		if len(stale) > 0 {
			t.forget(stale)
		}
		if len(t.dirty) > 0 {
			t.log.Info("restored dirty paths from journal", "count", len(t.dirty))
		}
	}

	return t, nil
}

// Root returns the workspace root.
func (t *Tracker) Root() string {
	return t.root
}

// Rel converts an absolute path into a normalized workspace-relative path.
func (t *Tracker) Rel(absPath string) (string, error) {
	if !filepath.IsAbs(absPath) {
		return "", fmt.Errorf("%w: %s is not absolute", ErrOutsideWorkspace, absPath)
	}

	rel, err := filepath.Rel(t.root, filepath.Clean(absPath))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, absPath)
	}

	rel = filepath.ToSlash(rel)
	if !validRel(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, absPath)
	}

	return rel, nil
}

func validRel(rel string) bool {
	return rel != "" && rel != "." && rel != ".." &&
		!strings.HasPrefix(rel, "../") && !strings.HasPrefix(rel, "/")
}

// RecordChange marks a modified file as dirty. It returns the relative path
// and whether the path was accepted.
func (t *Tracker) RecordChange(absPath string) (string, bool) {
	return t.record(absPath, "modified")
}

// RecordSave marks a saved file as dirty.
func (t *Tracker) RecordSave(absPath string) (string, bool) {
	return t.record(absPath, "saved")
}

func (t *Tracker) record(absPath, kind string) (string, bool) {
	rel, err := t.Rel(absPath)
	if err != nil {
		t.log.Debug("ignoring path", "path", absPath, "kind", kind, "error", err)
		return "", false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.excluder.Excluded(rel) {
		return rel, false
	}

	if _, ok := t.dirty[rel]; ok {
		return rel, true
	}
	t.dirty[rel] = struct{}{}

	if t.journal != nil {
		if err := t.journal.Add(rel); err != nil {
			t.log.Warn("journal add failed", "path", rel, "error", err)
		}
	}

	return rel, true
}

// Drain returns the dirty set sorted ascending and clears it. The journal
// keeps the paths until Commit.
func (t *Tracker) Drain() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := t.sortedLocked()
	clear(t.dirty)
	return paths
}

// Restore puts drained paths back after a capture that could not run.
func (t *Tracker) Restore(paths []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rel := range paths {
		if validRel(rel) && !t.excluder.Excluded(rel) {
			t.dirty[rel] = struct{}{}
		}
	}
}

// Commit removes captured paths from the journal. Paths that were dirtied
// again since the drain stay journaled.
func (t *Tracker) Commit(paths []string) {
	if t.journal == nil || len(paths) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	done := make([]string, 0, len(paths))
	for _, rel := range paths {
		if _, again := t.dirty[rel]; !again {
			done = append(done, rel)
		}
	}
	if len(done) > 0 {
		if err := t.journal.Remove(done...); err != nil {
			t.log.Warn("journal remove failed", "count", len(done), "error", err)
		}
	}
}

// Pending returns the dirty set sorted ascending without clearing it.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedLocked()
}

// Len returns the number of dirty paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dirty)
}

// SetExcluder replaces the exclusion rules and drops dirty paths that are
// now excluded.
func (t *Tracker) SetExcluder(e *Excluder) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.excluder = e

	var dropped []string
	for rel := range t.dirty {
		if e.Excluded(rel) {
			delete(t.dirty, rel)
			dropped = append(dropped, rel)
		}
	}
	if len(dropped) > 0 {
		t.forget(dropped)
	}
}

func (t *Tracker) forget(rels []string) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Remove(rels...); err != nil {
		t.log.Warn("journal remove failed", "count", len(rels), "error", err)
	}
}

func (t *Tracker) sortedLocked() []string {
	paths := make([]string, 0, len(t.dirty))
	for rel := range t.dirty {
		paths = append(paths, rel)
	}
	slices.Sort(paths)
	return paths
}
