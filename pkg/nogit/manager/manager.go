// Package manager owns the dirty-set tracker, the snapshot store and the
// scheduler for one workspace and runs capture cycles.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jamesainslie/nogit/pkg/nogit/config"
	"github.com/jamesainslie/nogit/pkg/nogit/logging"
	"github.com/jamesainslie/nogit/pkg/nogit/metrics"
	"github.com/jamesainslie/nogit/pkg/nogit/scheduler"
	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
	"github.com/jamesainslie/nogit/pkg/nogit/tracker"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("manager closed")

// Trigger identifies what started a capture cycle.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// Settings are the runtime parameters of a manager.
type Settings struct {
	Workspace       string
	Enable          bool
	Interval        time.Duration
	MaxSnapshots    int
	FolderName      string
	Exclude         []string
	ExcludePatterns []string
}

// SettingsFrom extracts manager settings from a loaded configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Workspace:       cfg.Workspace,
		Enable:          cfg.Enable,
		Interval:        cfg.Interval(),
		MaxSnapshots:    cfg.Retention(),
		FolderName:      cfg.FolderName,
		Exclude:         cfg.Exclude,
		ExcludePatterns: cfg.ExcludePatterns,
	}
}

// CaptureEvent describes a completed capture cycle.
type CaptureEvent struct {
	CycleID   string
	Trigger   Trigger
	Record    snapshot.Record
	Requested int
	Pruned    []string
	Elapsed   time.Duration
	At        time.Time
}

// Message is the transient status line shown after a capture.
func (e CaptureEvent) Message() string {
	return fmt.Sprintf("noGit snapshot saved (%d files)", len(e.Record.Files))
}

// Status is a point-in-time view of the manager.
type Status struct {
	Workspace   string
	State       scheduler.State
	Interval    time.Duration
	NextTick    time.Time
	Dirty       int
	Pending     []string
	LastCapture *CaptureEvent
}

// Option configures a Manager.
type Option func(*Manager)

// WithFs sets the filesystem used by the snapshot store.
func WithFs(fsys afero.Fs) Option {
	return func(m *Manager) {
		m.fs = fsys
	}
}

// WithClock sets the clock used for snapshot IDs.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithJournal persists the dirty set.
func WithJournal(j tracker.Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithCaptureHook is called after every successful capture.
func WithCaptureHook(fn func(CaptureEvent)) Option {
	return func(m *Manager) {
		m.hook = fn
	}
}

// Manager runs capture cycles for one workspace. At most one cycle is in
// flight: a manual trigger waits for the running cycle, a timer tick that
// finds one running is dropped and leaves the dirty set untouched.
type Manager struct {
	// slot is a one-slot semaphore guarding the capture+prune critical section.
	slot chan struct{}

	mu       sync.RWMutex
	settings Settings
	store    *snapshot.Store
	tracker  *tracker.Tracker
	excluder *tracker.Excluder
	last     *CaptureEvent
	closed   bool

	sched   *scheduler.Scheduler
	fs      afero.Fs
	now     func() time.Time
	journal tracker.Journal
	hook    func(CaptureEvent)
	log     *logging.Logger
}

// New builds a manager. The scheduler is not started until Start.
func New(settings Settings, opts ...Option) (*Manager, error) {
	m := &Manager{
		slot: make(chan struct{}, 1),
		fs:   afero.NewOsFs(),
		now:  time.Now,
		log:  logging.Get("capture"),
	}
	for _, opt := range opts {
		opt(m)
	}

	settings = normalize(settings)
	m.settings = settings
	m.store = m.newStore(settings)

	if settings.Workspace != "" {
		excluder, err := newExcluder(settings)
		if err != nil {
			return nil, err
		}
		m.excluder = excluder
		topts := []tracker.Option{tracker.WithExcluder(excluder)}
		if m.journal != nil {
			topts = append(topts, tracker.WithJournal(m.journal))
		}
		t, err := tracker.New(settings.Workspace, topts...)
		if err != nil {
			return nil, err
		}
		m.tracker = t
		metrics.SetDirty(t.Len())
	}

	m.sched = scheduler.New(m.tick)

	return m, nil
}

func normalize(s Settings) Settings {
	s.MaxSnapshots = max(1, s.MaxSnapshots)
	s.Interval = max(time.Minute, s.Interval)
	if s.FolderName == "" {
		s.FolderName = config.DefaultFolderName
	}
	return s
}

func newExcluder(s Settings) (*tracker.Excluder, error) {
	dirs := append([]string{s.FolderName}, s.Exclude...)
	return tracker.NewExcluder(dirs, s.ExcludePatterns)
}

func (m *Manager) newStore(s Settings) *snapshot.Store {
	return snapshot.New(s.Workspace, s.FolderName, snapshot.WithFs(m.fs), snapshot.WithClock(m.now))
}

// Start begins periodic captures. Without a workspace, or when disabled,
// the scheduler stays stopped.
func (m *Manager) Start() error {
	m.mu.RLock()
	s := m.settings
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if s.Workspace == "" {
		m.log.Warn("no workspace, periodic snapshots stay stopped")
		return nil
	}

	return m.sched.Start(s.Enable, s.Interval)
}

// Reconfigure applies new settings. It waits for an in-flight cycle, then
// swaps the store and exclusion rules and restarts the scheduler.
func (m *Manager) Reconfigure(ctx context.Context, settings Settings) error {
	settings = normalize(settings)

	m.mu.RLock()
	current := m.settings.Workspace
	m.mu.RUnlock()
	if settings.Workspace != current {
		return fmt.Errorf("workspace cannot change from %q to %q", current, settings.Workspace)
	}

	var excluder *tracker.Excluder
	if settings.Workspace != "" {
		var err error
		if excluder, err = newExcluder(settings); err != nil {
			return err
		}
	}

	if err := m.acquire(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings = settings
	m.store = m.newStore(settings)
	m.excluder = excluder
	if m.tracker != nil {
		m.tracker.SetExcluder(excluder)
	}
	m.mu.Unlock()
	m.release()

	m.log.Info("configuration applied",
		"enable", settings.Enable,
		"interval", settings.Interval,
		"max_snapshots", settings.MaxSnapshots,
		"folder", settings.FolderName)

	if settings.Workspace == "" {
		return nil
	}
	return m.sched.Reconfigure(settings.Enable, settings.Interval)
}

// Close stops the scheduler and waits for an in-flight cycle to finish.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	select {
	case <-m.sched.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	// A manual cycle may still hold the slot.
	select {
	case m.slot <- struct{}{}:
		m.release()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		m.release()
		return ErrClosed
	}
	return nil
}

func (m *Manager) release() {
	<-m.slot
}

// SnapshotNow runs one capture cycle, waiting for a running one to finish
// first. It returns a nil record when nothing was dirty or there is no
// workspace.
func (m *Manager) SnapshotNow(ctx context.Context) (*snapshot.Record, error) {
	m.mu.RLock()
	closed, noWorkspace := m.closed, m.tracker == nil
	m.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if noWorkspace {
		return nil, nil
	}

	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	ev, err := m.cycle(TriggerManual)
	if err != nil || ev == nil {
		return nil, err
	}
	return &ev.Record, nil
}

// tick is the scheduler job.
func (m *Manager) tick() {
	select {
	case m.slot <- struct{}{}:
	default:
		m.log.Debug("capture in progress, tick dropped")
		metrics.ObserveCapture(metrics.ResultSkipped, 0, 0, 0)
		return
	}
	defer m.release()

	if _, err := m.cycle(TriggerTimer); err != nil {
		m.log.Error("periodic snapshot failed", "error", err)
	}
}

// cycle must be called with the slot held.
func (m *Manager) cycle(trigger Trigger) (*CaptureEvent, error) {
	m.mu.RLock()
	store, t, retention := m.store, m.tracker, m.settings.MaxSnapshots
	m.mu.RUnlock()

	if t == nil {
		return nil, nil
	}

	start := m.now()
	cycleID := uuid.NewString()
	log := m.log.With("cycle", cycleID, "trigger", string(trigger))

	// Check the store before draining so a failure leaves the set intact.
	if err := store.EnsureRoot(); err != nil {
		metrics.ObserveCapture(metrics.ResultFailed, 0, 0, time.Since(start))
		log.Error("snapshot store unavailable", "error", err)
		return nil, err
	}

	paths := t.Drain()
	metrics.SetDirty(t.Len())
	if len(paths) == 0 {
		metrics.ObserveCapture(metrics.ResultEmpty, 0, 0, time.Since(start))
		log.Debug("nothing to capture")
		return nil, nil
	}

	rec, err := store.Capture(paths)
	if err != nil {
		t.Restore(paths)
		metrics.SetDirty(t.Len())
		metrics.ObserveCapture(metrics.ResultFailed, 0, 0, time.Since(start))
		log.Error("capture aborted, dirty paths kept", "paths", len(paths), "error", err)
		return nil, err
	}
	t.Commit(paths)

	failed := len(paths) - len(rec.Files)
	metrics.ObserveCapture(metrics.ResultSaved, len(rec.Files), failed, time.Since(start))

	var pruned []string
	result, err := store.Prune(retention)
	if err != nil {
		log.Error("prune failed", "error", err)
	} else {
		pruned = result.Removed
		metrics.ObservePrune(len(result.Removed), len(result.Failed))
	}

	ev := CaptureEvent{
		CycleID:   cycleID,
		Trigger:   trigger,
		Record:    *rec,
		Requested: len(paths),
		Pruned:    pruned,
		Elapsed:   time.Since(start),
		At:        start,
	}

	m.mu.Lock()
	m.last = &ev
	m.mu.Unlock()

	log.Info(ev.Message(), "id", rec.Timestamp, "failed", failed, "pruned", len(pruned))
	if m.hook != nil {
		m.hook(ev)
	}

	return &ev, nil
}

// RecordChange marks a modified file as dirty.
func (m *Manager) RecordChange(absPath string) bool {
	return m.record(absPath, false)
}

// RecordSave marks a saved file as dirty.
func (m *Manager) RecordSave(absPath string) bool {
	return m.record(absPath, true)
}

func (m *Manager) record(absPath string, saved bool) bool {
	m.mu.RLock()
	t := m.tracker
	m.mu.RUnlock()
	if t == nil {
		return false
	}

	var ok bool
	if saved {
		_, ok = t.RecordSave(absPath)
	} else {
		_, ok = t.RecordChange(absPath)
	}
	metrics.SetDirty(t.Len())
	return ok
}

// Excluded reports whether a path inside the workspace is never tracked.
// Directories should be passed with isDir so their own name is checked.
func (m *Manager) Excluded(rel string, isDir bool) bool {
	m.mu.RLock()
	excluder := m.excluder
	m.mu.RUnlock()

	if isDir {
		return excluder.ExcludedDir(rel)
	}
	return excluder.Excluded(rel)
}

// ListSnapshots returns all readable snapshots, newest first.
func (m *Manager) ListSnapshots() ([]snapshot.Record, error) {
	return m.Store().List()
}

// GetSnapshot returns one snapshot.
func (m *Manager) GetSnapshot(id string) (*snapshot.Record, error) {
	return m.Store().Get(id)
}

// ResolveSnapshotPath returns the stored location of rel in snapshot id.
func (m *Manager) ResolveSnapshotPath(id, rel string) (string, error) {
	return m.Store().Resolve(id, rel)
}

// Prune applies retention immediately. A limit below 1 uses the configured one.
func (m *Manager) Prune(ctx context.Context, limit int) (*snapshot.PruneResult, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	m.mu.RLock()
	store := m.store
	if limit < 1 {
		limit = m.settings.MaxSnapshots
	}
	m.mu.RUnlock()

	result, err := store.Prune(limit)
	if err != nil {
		return nil, err
	}
	metrics.ObservePrune(len(result.Removed), len(result.Failed))
	return result, nil
}

// Status returns the current manager state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	s := Status{Workspace: m.settings.Workspace, LastCapture: m.last}
	t := m.tracker
	m.mu.RUnlock()

	s.State = m.sched.State()
	s.Interval = m.sched.Interval()
	s.NextTick = m.sched.Next()
	if t != nil {
		s.Pending = t.Pending()
		s.Dirty = len(s.Pending)
	}
	return s
}

// Settings returns the active settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Store returns the active snapshot store.
func (m *Manager) Store() *snapshot.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}
