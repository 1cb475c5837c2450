// Package snapshot implements the on-disk snapshot store: timestamped
// directories holding mirrored copies of captured files plus a manifest.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

// Store manages <workspace>/<folder>/snapshots. Capture and Prune are
// serialized; reads are not.
type Store struct {
	fs        afero.Fs
	workspace string
	folder    string
	root      string
	now       func() time.Time

	mu        sync.Mutex
	skipped   map[string]struct{} // reserved paths already reported
	captureLg *logging.Logger
	pruneLg   *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(s *Store) {
		s.fs = fsys
	}
}

// WithClock sets the clock used to derive snapshot IDs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store for the workspace. An empty workspace yields a store
// whose operations fail with ErrNoWorkspace.
func New(workspace, folder string, opts ...Option) *Store {
	s := &Store{
		fs:        afero.NewOsFs(),
		workspace: workspace,
		folder:    folder,
		now:       time.Now,
		captureLg: logging.Get("capture"),
		pruneLg:   logging.Get("prune"),
	}

	if workspace != "" {
		s.root = filepath.Join(workspace, folder, "snapshots")
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Root returns the directory holding the snapshot directories.
func (s *Store) Root() string {
	return s.root
}

// Workspace returns the workspace root.
func (s *Store) Workspace() string {
	return s.workspace
}

// Folder returns the snapshot folder name.
func (s *Store) Folder() string {
	return s.folder
}

// Dir returns the directory of snapshot id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// EnsureRoot creates the store root if it does not exist.
func (s *Store) EnsureRoot() error {
	if s.workspace == "" {
		return ErrNoWorkspace
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStoreIO, s.root, err)
	}
	return nil
}

// Capture copies the given workspace-relative files into a new snapshot and
// writes its manifest. A file that cannot be copied is logged and left out
// of the manifest. Zero paths is a no-op returning a nil record.
func (s *Store) Capture(paths []string) (*Record, error) {
	if s.workspace == "" {
		return nil, ErrNoWorkspace
	}
	if len(paths) == 0 {
		return nil, nil
	}

	wanted := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := cleanRel(p)
		if err != nil {
			s.captureLg.Warn("copy failed", "path", p, "error", err)
			continue
		}
		wanted = append(wanted, rel)
	}
	slices.Sort(wanted)
	wanted = slices.Compact(wanted)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.EnsureRoot(); err != nil {
		return nil, err
	}

	id, err := s.claim(s.now())
	if err != nil {
		return nil, err
	}
	dir := s.Dir(id)

	copied := make([]string, 0, len(wanted))
	for _, rel := range wanted {
		if reservedName(rel) {
			s.skipReserved(id, rel)
			continue
		}
		if err := s.copyFile(rel, dir); err != nil {
			s.captureLg.Warn("copy failed", "id", id, "path", rel, "error", err)
			continue
		}
		copied = append(copied, rel)
	}

	rec := &Record{Timestamp: id, Files: copied}
	if err := writeManifest(s.fs, dir, rec); err != nil {
		if rmErr := s.fs.RemoveAll(dir); rmErr != nil {
			s.captureLg.Error("failed to remove incomplete snapshot", "id", id, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	s.captureLg.Debug("snapshot written", "id", id, "requested", len(paths), "copied", len(copied))

	return rec, nil
}

// claim creates a fresh snapshot directory for t. An existing directory is
// never reused; same-second captures get a numeric suffix.
func (s *Store) claim(t time.Time) (string, error) {
	base := NewID(t)

	for n := 0; n <= maxCollisions; n++ {
		id := collisionID(base, n)
		err := s.fs.Mkdir(s.Dir(id), 0o755)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: creating snapshot %s: %v", ErrStoreIO, id, err)
		}
	}

	return "", fmt.Errorf("%w: too many snapshots in second %s", ErrStoreIO, base)
}

// skipReserved leaves out a path that would collide with the manifest. It is
// logged once per store; s.mu must be held.
func (s *Store) skipReserved(id, rel string) {
	if _, ok := s.skipped[rel]; ok {
		return
	}
	if s.skipped == nil {
		s.skipped = make(map[string]struct{})
	}
	s.skipped[rel] = struct{}{}
	s.captureLg.Info("path collides with the snapshot manifest, not captured", "id", id, "path", rel)
}

func (s *Store) copyFile(rel, dir string) (err error) {
	src, err := s.fs.Open(filepath.Join(s.workspace, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", rel)
	}

	dstPath := filepath.Join(dir, filepath.FromSlash(rel))
	if err := s.fs.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}

	dst, err := s.fs.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = s.fs.Remove(dstPath)
		}
	}()

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}

	return dst.Close()
}
