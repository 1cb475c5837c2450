package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
)

// IDs returns the IDs of all snapshot directories, oldest first. Entries
// whose names are not snapshot IDs are ignored. A missing root yields none.
func (s *Store) IDs() ([]string, error) {
	if s.workspace == "" {
		return nil, ErrNoWorkspace
	}

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrStoreIO, s.root, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && ValidID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	slices.Sort(ids)

	return ids, nil
}

// List returns all readable snapshots, newest first. A snapshot with a
// missing or unparsable manifest is skipped.
func (s *Store) List() ([]Record, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		rec, err := readManifest(s.fs, s.Dir(ids[i]), ids[i])
		if err != nil {
			s.captureLg.Debug("skipping snapshot", "id", ids[i], "error", err)
			continue
		}
		records = append(records, *rec)
	}

	return records, nil
}

// Get returns the record of a single snapshot.
func (s *Store) Get(id string) (*Record, error) {
	if s.workspace == "" {
		return nil, ErrNoWorkspace
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info, err := s.fs.Stat(s.Dir(id))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return readManifest(s.fs, s.Dir(id), id)
}

// Latest returns the newest readable snapshot, or ErrNotFound.
func (s *Store) Latest() (*Record, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// Resolve returns the absolute path of rel inside snapshot id. It does not
// check that the file exists.
func (s *Store) Resolve(id, rel string) (string, error) {
	if s.workspace == "" {
		return "", ErrNoWorkspace
	}
	if !ValidID(id) {
		return "", fmt.Errorf("%w: malformed snapshot id %q", ErrInvalidPath, id)
	}

	cleaned, err := cleanRel(rel)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.Dir(id), filepath.FromSlash(cleaned)), nil
}

// Usage returns the total size in bytes of the files listed in snapshot id.
func (s *Store) Usage(id string) (int64, error) {
	rec, err := s.Get(id)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, rel := range rec.Files {
		info, err := s.fs.Stat(filepath.Join(s.Dir(id), filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		total += info.Size()
	}

	return total, nil
}
