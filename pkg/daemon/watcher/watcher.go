// Package watcher feeds filesystem changes in a workspace to the dirty-set
// tracker.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

// Recorder receives change notifications. It is satisfied by the manager.
type Recorder interface {
	RecordChange(absPath string) bool
	RecordSave(absPath string) bool
	Excluded(rel string, isDir bool) bool
}

// Watcher watches a workspace recursively.
type Watcher struct {
	root    string
	rec     Recorder
	watcher *fsnotify.Watcher
	paths   map[string]bool
	mu      sync.RWMutex
	closed  bool
	log     *logging.Logger
}

// New creates a Watcher for the workspace root.
func New(root string, rec Recorder) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    absRoot,
		rec:     rec,
		watcher: fsw,
		paths:   make(map[string]bool),
		log:     logging.Get("watcher"),
	}, nil
}

// Watch adds watches to the root and every directory below it that is not
// excluded. Symlinks are not followed.
func (w *Watcher) Watch() error {
	info, err := os.Lstat(w.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: w.root, Err: errors.New("not a directory")}
	}

	return w.walk(w.root)
}

func (w *Watcher) walk(dir string) error {
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // Skip entries with errors
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path, true) {
			return fastwalk.SkipDir
		}
		_ = w.addWatch(path)
		return nil
	})
	if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
		return err
	}
	return nil
}

// excluded reports whether path is outside the workspace or excluded.
func (w *Watcher) excluded(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	return w.rec.Excluded(filepath.ToSlash(rel), isDir)
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}

	if err := w.watcher.Add(path); err != nil {
		w.log.Warn("failed to add watch", "path", path, "error", err)
		return err
	}

	w.paths[path] = true
	return nil
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// Run processes events until the context is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		w.handleCreate(event.Name)
	case event.Op&fsnotify.Write != 0:
		w.handleWrite(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename target arrives as its own Create.
		w.handleRemove(event.Name)
	}
}

// handleCreate treats a new regular file as a save; new directories are
// watched along with anything created inside them before the watch landed.
func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}

	switch {
	case info.IsDir():
		if w.excluded(path, true) {
			return
		}
		_ = w.walk(path)
		w.recordTree(path)
	case info.Mode().IsRegular():
		if !w.excluded(path, false) {
			w.rec.RecordSave(path)
		}
	}
}

func (w *Watcher) handleWrite(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if !w.excluded(path, false) {
		w.rec.RecordChange(path)
	}
}

func (w *Watcher) handleRemove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for watched := range w.paths {
		if watched == path || isSubPath(watched, path) {
			_ = w.watcher.Remove(watched)
			delete(w.paths, watched)
		}
	}
}

// recordTree records the files of a directory that appeared in one move.
func (w *Watcher) recordTree(dir string) {
	conf := fastwalk.Config{Follow: false}

	_ = fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // Skip entries with errors
		}
		if d.IsDir() {
			if path != dir && w.excluded(path, true) {
				return fastwalk.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !w.excluded(path, false) {
			w.rec.RecordSave(path)
		}
		return nil
	})
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
