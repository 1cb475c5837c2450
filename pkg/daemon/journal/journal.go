// Package journal provides Badger DB-backed persistence for the daemon: the
// dirty set of each workspace and its capture statistics.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for different data types
const (
	prefixDirty = "d:" // d:<workspace>\x00<rel> -> empty
	prefixStats = "s:" // s:<workspace> -> Stats JSON
	prefixMeta  = "m:" // Metadata (schema)
)

// DB is the daemon journal backed by Badger DB.
type DB struct {
	db *badger.DB
}

// Open opens or creates a journal at the given directory.
func Open(path string) (*DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	d := &DB{db: db}
	if err := d.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// Close closes the journal.
func (d *DB) Close() error {
	return d.db.Close()
}

// ForWorkspace returns the journal of one workspace root.
func (d *DB) ForWorkspace(root string) *Workspace {
	return &Workspace{db: d.db, root: root}
}

// Stats are cumulative capture statistics of a workspace.
type Stats struct {
	Captures    int64     `json:"captures"`
	FilesCopied int64     `json:"files_copied"`
	LastID      string    `json:"last_id,omitempty"`
	LastAt      time.Time `json:"last_at,omitempty"`
}

// Workspace is the journal of a single workspace. It implements the
// tracker's Journal interface.
type Workspace struct {
	db   *badger.DB
	root string
}

func (w *Workspace) dirtyPrefix() []byte {
	return []byte(prefixDirty + w.root + "\x00")
}

func (w *Workspace) dirtyKey(rel string) []byte {
	return append(w.dirtyPrefix(), rel...)
}

// Add journals a dirty path.
func (w *Workspace) Add(rel string) error {
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Set(w.dirtyKey(rel), nil)
	})
}

// Remove drops captured paths from the journal.
func (w *Workspace) Remove(rels ...string) error {
	if len(rels) == 0 {
		return nil
	}

	wb := w.db.NewWriteBatch()
	defer wb.Cancel()

	for _, rel := range rels {
		if err := wb.Delete(w.dirtyKey(rel)); err != nil {
			return err
		}
	}

	return wb.Flush()
}

// Load returns all journaled dirty paths, sorted.
func (w *Workspace) Load() ([]string, error) {
	var rels []string

	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := w.dirtyPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rels = append(rels, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(rels)
	return rels, nil
}

// RecordCapture adds a capture to the workspace statistics.
func (w *Workspace) RecordCapture(id string, files int, at time.Time) error {
	key := []byte(prefixStats + w.root)

	return w.db.Update(func(txn *badger.Txn) error {
		stats, err := readStats(txn, key)
		if err != nil {
			return err
		}

		stats.Captures++
		stats.FilesCopied += int64(files)
		stats.LastID = id
		stats.LastAt = at

		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Stats returns the workspace statistics.
func (w *Workspace) Stats() (Stats, error) {
	var stats Stats

	err := w.db.View(func(txn *badger.Txn) error {
		var err error
		stats, err = readStats(txn, []byte(prefixStats+w.root))
		return err
	})

	return stats, err
}

func readStats(txn *badger.Txn, key []byte) (Stats, error) {
	var stats Stats

	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stats)
	})
	if err != nil {
		return stats, fmt.Errorf("decoding stats: %w", err)
	}

	return stats, nil
}
