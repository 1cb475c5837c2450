package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/nogit/pkg/nogit/scheduler"
	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

const workspace = "/work/project"

// gateFs blocks Open of one file until the gate is released and can fail
// snapshot directory creation.
type gateFs struct {
	afero.Fs
	gated     string
	entered   chan struct{}
	release   chan struct{}
	once      sync.Once
	mu        sync.Mutex
	failClaim bool
}

func newGateFs(gated string) *gateFs {
	return &gateFs{
		Fs:      afero.NewMemMapFs(),
		gated:   gated,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gateFs) Open(name string) (afero.File, error) {
	if g.gated != "" && name == filepath.Join(workspace, g.gated) {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.Fs.Open(name)
}

func (g *gateFs) Mkdir(name string, perm os.FileMode) error {
	g.mu.Lock()
	fail := g.failClaim
	g.mu.Unlock()
	if fail && strings.Contains(name, "snapshots"+string(filepath.Separator)) {
		return &os.PathError{Op: "mkdir", Path: name, Err: errors.New("disk full")}
	}
	return g.Fs.Mkdir(name, perm)
}

func (g *gateFs) setFailClaim(v bool) {
	g.mu.Lock()
	g.failClaim = v
	g.mu.Unlock()
}

func writeFile(t *testing.T, fsys afero.Fs, rel, content string) string {
	t.Helper()
	p := filepath.Join(workspace, filepath.FromSlash(rel))
	require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(fsys, p, []byte(content), 0o644))
	return p
}

func testSettings() Settings {
	return Settings{
		Workspace:    workspace,
		Enable:       true,
		Interval:     time.Hour,
		MaxSnapshots: 48,
		FolderName:   ".nogit",
		Exclude:      []string{".git", "node_modules"},
	}
}

func newManager(t *testing.T, fsys afero.Fs, opts ...Option) *Manager {
	t.Helper()
	m, err := New(testSettings(), append([]Option{WithFs(fsys)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func TestSnapshotNowCapturesDirtyFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	var events []CaptureEvent
	m := newManager(t, fsys, WithCaptureHook(func(ev CaptureEvent) { events = append(events, ev) }))

	assert.True(t, m.RecordChange(writeFile(t, fsys, "a.txt", "alpha")))
	assert.True(t, m.RecordSave(writeFile(t, fsys, "sub/b.txt", "bravo")))
	assert.False(t, m.RecordChange(writeFile(t, fsys, "node_modules/x.js", "x")))
	assert.False(t, m.RecordChange(filepath.Join(workspace, ".nogit", "snapshots", "x")))

	rec, err := m.SnapshotNow(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, rec.Files)

	require.Len(t, events, 1)
	assert.Equal(t, "noGit snapshot saved (2 files)", events[0].Message())
	assert.Equal(t, TriggerManual, events[0].Trigger)
	assert.NotEmpty(t, events[0].CycleID)

	records, err := m.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, records, 1)

	path, err := m.ResolveSnapshotPath(rec.Timestamp, "sub/b.txt")
	require.NoError(t, err)
	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(data))

	// Nothing dirty: no new snapshot.
	rec, err = m.SnapshotNow(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	records, err = m.ListSnapshots()
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, events[0].Record.Timestamp, m.Status().LastCapture.Record.Timestamp)
}

func TestManualTriggerQueuesBehindRunningCycle(t *testing.T) {
	fsys := newGateFs("slow.txt")
	m := newManager(t, fsys)

	m.RecordChange(writeFile(t, fsys, "slow.txt", "slow"))

	first := make(chan *snapshot.Record, 1)
	go func() {
		rec, err := m.SnapshotNow(context.Background())
		assert.NoError(t, err)
		first <- rec
	}()
	<-fsys.entered

	// A change during the running cycle goes to the next one.
	m.RecordChange(writeFile(t, fsys, "late.txt", "late"))

	second := make(chan *snapshot.Record, 1)
	go func() {
		rec, err := m.SnapshotNow(context.Background())
		assert.NoError(t, err)
		second <- rec
	}()

	select {
	case <-second:
		t.Fatal("second manual trigger ran concurrently with the first")
	case <-time.After(100 * time.Millisecond):
	}

	close(fsys.release)

	rec1 := <-first
	rec2 := <-second
	require.NotNil(t, rec1)
	require.NotNil(t, rec2)
	assert.Equal(t, []string{"slow.txt"}, rec1.Files)
	assert.Equal(t, []string{"late.txt"}, rec2.Files)
}

func TestTickDuringCycleIsDroppedWithoutDraining(t *testing.T) {
	fsys := newGateFs("slow.txt")
	m := newManager(t, fsys)

	m.RecordChange(writeFile(t, fsys, "slow.txt", "slow"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.SnapshotNow(context.Background())
	}()
	<-fsys.entered

	m.RecordChange(writeFile(t, fsys, "pending.txt", "pending"))
	m.tick()

	assert.Equal(t, []string{"pending.txt"}, m.Status().Pending, "dropped tick must not drain")

	close(fsys.release)
	<-done

	m.tick()
	assert.Empty(t, m.Status().Pending)

	records, err := m.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"pending.txt"}, records[0].Files)
	assert.Equal(t, TriggerTimer, m.Status().LastCapture.Trigger)
}

func TestCancelledWaitDoesNotDrain(t *testing.T) {
	fsys := newGateFs("slow.txt")
	m := newManager(t, fsys)

	m.RecordChange(writeFile(t, fsys, "slow.txt", "slow"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.SnapshotNow(context.Background())
	}()
	<-fsys.entered

	m.RecordChange(writeFile(t, fsys, "b.txt", "b"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.SnapshotNow(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"b.txt"}, m.Status().Pending)

	close(fsys.release)
	<-done
}

func TestStoreFailureKeepsDirtySet(t *testing.T) {
	fsys := newGateFs("")
	m := newManager(t, fsys)

	m.RecordChange(writeFile(t, fsys, "a.txt", "alpha"))
	m.RecordChange(writeFile(t, fsys, "b.txt", "bravo"))

	fsys.setFailClaim(true)
	rec, err := m.SnapshotNow(context.Background())
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, snapshot.ErrStoreIO)
	assert.Equal(t, []string{"a.txt", "b.txt"}, m.Status().Pending)

	fsys.setFailClaim(false)
	rec, err = m.SnapshotNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, rec.Files)
}

func TestStoreRootFailureKeepsDirtySet(t *testing.T) {
	dir := t.TempDir()
	settings := testSettings()
	settings.Workspace = dir

	m, err := New(settings)
	require.NoError(t, err)
	defer func() { _ = m.Close(context.Background()) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))
	m.RecordChange(filepath.Join(dir, "a.txt"))
	// A regular file where the snapshot folder should be.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".nogit"), []byte("x"), 0o644))

	_, err = m.SnapshotNow(context.Background())
	assert.ErrorIs(t, err, snapshot.ErrStoreIO)
	assert.Equal(t, []string{"a.txt"}, m.Status().Pending)

	require.NoError(t, os.Remove(filepath.Join(dir, ".nogit")))
	rec, err := m.SnapshotNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, rec.Files)
}

func TestCopyFailureIsNotRetried(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m := newManager(t, fsys)

	m.RecordChange(writeFile(t, fsys, "b.txt", "bravo"))
	m.RecordChange(filepath.Join(workspace, "a.txt")) // deleted before capture

	rec, err := m.SnapshotNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, rec.Files)
	assert.Empty(t, m.Status().Pending)
}

func TestRetentionAppliedAfterCapture(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	m := newManager(t, fsys, WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))

	settings := testSettings()
	settings.MaxSnapshots = 2
	require.NoError(t, m.Reconfigure(context.Background(), settings))

	for i := 0; i < 4; i++ {
		m.RecordChange(writeFile(t, fsys, "a.txt", strings.Repeat("x", i+1)))
		_, err := m.SnapshotNow(context.Background())
		require.NoError(t, err)
	}

	records, err := m.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Greater(t, records[0].Timestamp, records[1].Timestamp)

	result, err := m.Prune(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, result.Removed, 1)
}

func TestNoWorkspace(t *testing.T) {
	m, err := New(Settings{Enable: true, Interval: time.Minute})
	require.NoError(t, err)
	defer func() { _ = m.Close(context.Background()) }()

	require.NoError(t, m.Start())
	assert.Equal(t, scheduler.Stopped, m.Status().State)

	rec, err := m.SnapshotNow(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, rec)

	assert.False(t, m.RecordChange("/anything/a.txt"))

	_, err = m.ListSnapshots()
	assert.ErrorIs(t, err, snapshot.ErrNoWorkspace)
	_, err = m.ResolveSnapshotPath("20240101-120000", "a.txt")
	assert.ErrorIs(t, err, snapshot.ErrNoWorkspace)
}

func TestStartAndReconfigureScheduler(t *testing.T) {
	m := newManager(t, afero.NewMemMapFs())

	require.NoError(t, m.Start())
	st := m.Status()
	assert.Equal(t, scheduler.Running, st.State)
	assert.Equal(t, time.Hour, st.Interval)

	settings := testSettings()
	settings.Interval = 5 * time.Minute
	require.NoError(t, m.Reconfigure(context.Background(), settings))
	assert.Equal(t, 5*time.Minute, m.Status().Interval)

	settings.Enable = false
	require.NoError(t, m.Reconfigure(context.Background(), settings))
	assert.Equal(t, scheduler.Stopped, m.Status().State)

	settings.Workspace = "/elsewhere"
	assert.Error(t, m.Reconfigure(context.Background(), settings))
}

func TestReconfigureExclusions(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m := newManager(t, fsys)

	m.RecordChange(writeFile(t, fsys, "vendor/lib.go", "x"))
	m.RecordChange(writeFile(t, fsys, "main.go", "y"))

	settings := testSettings()
	settings.Exclude = append(settings.Exclude, "vendor")
	require.NoError(t, m.Reconfigure(context.Background(), settings))

	assert.Equal(t, []string{"main.go"}, m.Status().Pending)
	assert.True(t, m.Excluded("vendor", true))
	assert.True(t, m.Excluded(".nogit", true))
	assert.False(t, m.Excluded("src", true))
}

func TestIntervalIsClampedToAMinute(t *testing.T) {
	settings := testSettings()
	settings.Interval = 0
	settings.MaxSnapshots = 0

	m, err := New(settings, WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	defer func() { _ = m.Close(context.Background()) }()

	assert.Equal(t, time.Minute, m.Settings().Interval)
	assert.Equal(t, 1, m.Settings().MaxSnapshots)
}

func TestCloseWaitsForCycleAndRejectsNewWork(t *testing.T) {
	fsys := newGateFs("slow.txt")
	m, err := New(testSettings(), WithFs(fsys))
	require.NoError(t, err)
	require.NoError(t, m.Start())

	m.RecordChange(writeFile(t, fsys, "slow.txt", "slow"))

	captured := make(chan *snapshot.Record, 1)
	go func() {
		rec, _ := m.SnapshotNow(context.Background())
		captured <- rec
	}()
	<-fsys.entered

	closed := make(chan error, 1)
	go func() { closed <- m.Close(context.Background()) }()

	select {
	case <-closed:
		t.Fatal("Close returned while a cycle was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(fsys.release)
	require.NoError(t, <-closed)
	require.NotNil(t, <-captured, "an in-flight capture runs to completion")

	_, err = m.SnapshotNow(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Start(), ErrClosed)
	assert.Equal(t, scheduler.Stopped, m.Status().State)
}

type memJournal struct {
	mu      sync.Mutex
	entries map[string]bool
}

func (j *memJournal) Add(rel string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[rel] = true
	return nil
}

func (j *memJournal) Remove(rels ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range rels {
		delete(j.entries, r)
	}
	return nil
}

func (j *memJournal) Load() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for r := range j.entries {
		out = append(out, r)
	}
	return out, nil
}

func TestJournalSurvivesRestart(t *testing.T) {
	fsys := afero.NewMemMapFs()
	j := &memJournal{entries: map[string]bool{}}

	first, err := New(testSettings(), WithFs(fsys), WithJournal(j))
	require.NoError(t, err)
	first.RecordChange(writeFile(t, fsys, "a.txt", "alpha"))
	require.NoError(t, first.Close(context.Background()))

	second := newManager(t, fsys, WithJournal(j))
	assert.Equal(t, []string{"a.txt"}, second.Status().Pending)

	rec, err := second.SnapshotNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, rec.Files)

	loaded, _ := j.Load()
	assert.Empty(t, loaded)
}
