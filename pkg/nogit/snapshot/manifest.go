package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// ManifestName is the manifest written into each snapshot directory.
	ManifestName = "meta.yaml"

	// legacyManifestName is read when ManifestName is absent. JSON is valid
	// YAML, so the same decoder handles both.
	legacyManifestName = "meta.json"

	manifestTmpName = ".meta.yaml.tmp"
)

// Record describes one completed capture. Files lists only the paths that
// were copied successfully, sorted ascending.
type Record struct {
	Timestamp string   `yaml:"timestamp" json:"timestamp"`
	Files     []string `yaml:"files" json:"files"`
}

// reservedName reports whether rel would occupy a manifest name at the top
// of a snapshot directory, either as a file or as a directory holding the
// file.
func reservedName(rel string) bool {
	first, _, _ := strings.Cut(rel, "/")
	switch first {
	case ManifestName, legacyManifestName, manifestTmpName:
		return true
	}
	return false
}

// writeManifest atomically writes rec into dir.
func writeManifest(fsys afero.Fs, dir string, rec *Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmpPath := filepath.Join(dir, manifestTmpName)
	if err := afero.WriteFile(fsys, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}

	if err := fsys.Rename(tmpPath, filepath.Join(dir, ManifestName)); err != nil {
		_ = fsys.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp manifest: %w", err)
	}

	return nil
}

// readManifest reads the manifest of the snapshot in dir.
func readManifest(fsys afero.Fs, dir, id string) (*Record, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		data, err = afero.ReadFile(fsys, filepath.Join(dir, legacyManifestName))
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no manifest", ErrManifestCorrupt, id)
		}
		return nil, fmt.Errorf("%w: reading manifest of %s: %v", ErrStoreIO, id, err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestCorrupt, id, err)
	}

	files := make([]string, 0, len(rec.Files))
	for _, f := range rec.Files {
		rel, err := cleanRel(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s lists %q", ErrManifestCorrupt, id, f)
		}
		files = append(files, rel)
	}

	// The directory name is the identity; a hand-edited timestamp field
	// must not send Resolve somewhere else.
	return &Record{Timestamp: id, Files: files}, nil
}
