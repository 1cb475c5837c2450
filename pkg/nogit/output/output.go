// Package output renders snapshot listings for the command line. Formatters
// are registered by name and selected with --format.
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

// SnapshotInfo is one snapshot prepared for display.
type SnapshotInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Time      time.Time `json:"time" yaml:"time"`
	Files     []string  `json:"files" yaml:"files"`
	Size      int64     `json:"size" yaml:"size"`
	SizeHuman string    `json:"size_human" yaml:"size_human"`
	Dir       string    `json:"dir" yaml:"dir"`
}

// NewSnapshotInfo builds display data for a record stored in dir.
func NewSnapshotInfo(rec snapshot.Record, dir string, size int64) SnapshotInfo {
	ts, _, err := snapshot.ParseID(rec.Timestamp)
	if err != nil {
		ts = time.Time{}
	}
	files := rec.Files
	if files == nil {
		files = []string{}
	}
	return SnapshotInfo{
		ID:        rec.Timestamp,
		Time:      ts,
		Files:     files,
		Size:      size,
		SizeHuman: humanize.IBytes(uint64(size)),
		Dir:       dir,
	}
}

// Result is everything a formatter renders.
type Result struct {
	Workspace string         `json:"workspace" yaml:"workspace"`
	Root      string         `json:"root" yaml:"root"`
	Snapshots []SnapshotInfo `json:"snapshots" yaml:"snapshots"`

	// Pending lists dirty paths not yet captured, when a daemon reported them.
	Pending  []string `json:"pending,omitempty" yaml:"pending,omitempty"`
	DaemonUp bool     `json:"daemon_up" yaml:"daemon_up"`

	// Verbose lists the files of every snapshot in table output.
	Verbose bool `json:"-" yaml:"-"`

	// Now is the reference time for relative ages. Zero means time.Now.
	Now time.Time `json:"-" yaml:"-"`
}

// TotalSize returns the summed size of all snapshots.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, s := range r.Snapshots {
		total += s.Size
	}
	return total
}

func (r *Result) now() time.Time {
	if r.Now.IsZero() {
		return time.Now()
	}
	return r.Now
}

// age renders the time since a snapshot was taken.
func (r *Result) age(s SnapshotInfo) string {
	if s.Time.IsZero() {
		return "-"
	}
	return humanize.RelTime(s.Time, r.now(), "ago", "from now")
}

// Formatter writes a Result.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps names to formatter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a formatter.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the names in the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
