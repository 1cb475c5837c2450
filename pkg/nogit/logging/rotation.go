package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// RotationConfig controls when the log file is rotated and how many old
// files are kept.
type RotationConfig struct {
	// MaxSize in bytes. Zero means 10MB.
	MaxSize int64

	// MaxAge in days. Zero keeps files regardless of age.
	MaxAge int

	// MaxBackups is the number of rotated files to keep. Zero keeps all.
	MaxBackups int

	// Daily also rotates on the first write of a new day.
	Daily bool
}

// DefaultRotationConfig returns 10MB files, 5 backups, 30 days, daily.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// ParseMaxSize parses a size such as "10MB" or "512KiB". Empty means the
// default.
func ParseMaxSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultRotationConfig().MaxSize, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parsing max size %q: %w", s, err)
	}
	return int64(n), nil
}

// rotatedStamp names rotated files: nogit.20240101-120000.000.log.
const rotatedStamp = "20060102-150405.000"

// RotatingWriter appends to a log file and rotates it by size and day.
// Each write holds an flock on the file since the CLI and the daemon may
// log to the same file.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu     sync.Mutex
	f      *os.File
	size   int64
	opened string // day key of the current file
}

// NewRotatingWriter opens path for appending, creating its directory.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.removeOld()
	return w, nil
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// open must be called with w.mu held or before w is shared.
func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	w.f = f
	w.size = info.Size()
	w.opened = dayKey(time.Now())
	if w.size > 0 {
		w.opened = dayKey(info.ModTime())
	}
	return nil
}

func (w *RotatingWriter) due(n int64) bool {
	if w.size > 0 && w.size+n > w.cfg.MaxSize {
		return true
	}
	return w.cfg.Daily && dayKey(time.Now()) != w.opened
}

// Write appends p, rotating first when the file is full or a day old.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return 0, os.ErrClosed
	}
	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	fd := int(w.f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("locking log file: %w", err)
	}
	n, err := w.f.Write(p)
	_ = unix.Flock(fd, unix.LOCK_UN)

	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the file. It is safe to call more than once.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	return errors.Join(f.Sync(), f.Close())
}

// rotate must be called with w.mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	w.f = nil

	ext := filepath.Ext(w.path)
	target := strings.TrimSuffix(w.path, ext) + "." + time.Now().Format(rotatedStamp) + ext
	if err := os.Rename(w.path, target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("renaming log file: %w", err)
	}

	if err := w.open(); err != nil {
		return err
	}
	w.removeOld()
	return nil
}

// removeOld deletes rotated files beyond MaxBackups or older than MaxAge.
func (w *RotatingWriter) removeOld() {
	ext := filepath.Ext(w.path)
	pattern := strings.TrimSuffix(w.path, ext) + ".*" + ext
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	type backup struct {
		path string
		mod  time.Time
	}
	backups := make([]backup, 0, len(matches))
	for _, m := range matches {
		if m == w.path {
			continue
		}
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			backups = append(backups, backup{m, info.ModTime()})
		}
	}
	// Newest first.
	slices.SortFunc(backups, func(a, b backup) int { return b.mod.Compare(a.mod) })

	cutoff := time.Now().AddDate(0, 0, -w.cfg.MaxAge)
	for i, b := range backups {
		excess := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		expired := w.cfg.MaxAge > 0 && b.mod.Before(cutoff)
		if excess || expired {
			_ = os.Remove(b.path)
		}
	}
}
