package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nogitv1 "github.com/jamesainslie/nogit/pkg/api/nogit/v1"
	"github.com/jamesainslie/nogit/pkg/nogit/logging"
	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, verbose, quiet, noDaemon = "", false, false, false
	listFormat, listVerbose, pruneMax = "table", false, 0
	watchKinds = nil

	var out, errOut bytes.Buffer
	stdout, stderr = &out, &errOut
	t.Cleanup(func() {
		stdout, stderr = os.Stdout, os.Stderr
		_ = logging.Close()
	})

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	if errOut.Len() > 0 {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

// isolate points config, logs and daemon files at temp directories and
// returns a workspace.
func isolate(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("NOGIT_LOGGING_PATH", filepath.Join(home, "nogit.log"))
	t.Setenv("NOGIT_DAEMON_DATA_DIR", filepath.Join(home, "data"))

	ws := t.TempDir()
	return ws
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type listing struct {
	Workspace string `json:"workspace"`
	DaemonUp  bool   `json:"daemon_up"`
	Snapshots []struct {
		ID    string   `json:"id"`
		Files []string `json:"files"`
		Size  int64    `json:"size"`
	} `json:"snapshots"`
}

func listJSON(t *testing.T, ws string) listing {
	t.Helper()
	out, err := runCLI(t, "list", "-w", ws, "--no-daemon", "--format", "json")
	require.NoError(t, err)

	var l listing
	require.NoError(t, json.Unmarshal([]byte(out), &l))
	return l
}

func TestSnapshotWithoutDaemonCapturesNamedFiles(t *testing.T) {
	ws := isolate(t)
	writeFile(t, filepath.Join(ws, "notes.md"), "hello")
	writeFile(t, filepath.Join(ws, "src", "main.go"), "package main")

	out, err := runCLI(t, "snapshot", "-w", ws,
		filepath.Join(ws, "notes.md"), filepath.Join(ws, "src", "main.go"))
	require.NoError(t, err)
	assert.Contains(t, out, "noGit snapshot saved (2 files)")

	l := listJSON(t, ws)
	assert.Equal(t, ws, l.Workspace)
	assert.False(t, l.DaemonUp)
	require.Len(t, l.Snapshots, 1)
	assert.ElementsMatch(t, []string{"notes.md", "src/main.go"}, l.Snapshots[0].Files)
	assert.Equal(t, int64(len("hello")+len("package main")), l.Snapshots[0].Size)

	id := l.Snapshots[0].ID
	out, err = runCLI(t, "path", "-w", ws, id, "src/main.go")
	require.NoError(t, err)
	data, err := os.ReadFile(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))

	out, err = runCLI(t, "show", "-w", ws, "latest")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "notes.md\n")
}

func TestSnapshotSkipsExcludedFiles(t *testing.T) {
	ws := isolate(t)
	writeFile(t, filepath.Join(ws, "node_modules", "x.js"), "x")

	out, err := runCLI(t, "snapshot", "-w", ws, filepath.Join(ws, "node_modules", "x.js"))
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to snapshot")
	assert.Empty(t, listJSON(t, ws).Snapshots)
}

func TestSnapshotWithoutFilesNeedsDaemon(t *testing.T) {
	ws := isolate(t)

	_, err := runCLI(t, "snapshot", "-w", ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no daemon running")
}

func TestPruneKeepsNewest(t *testing.T) {
	ws := isolate(t)
	writeFile(t, filepath.Join(ws, "a.txt"), "a")

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	for i := range 3 {
		at := base.Add(time.Duration(i) * time.Minute)
		store := snapshot.New(ws, ".nogit", snapshot.WithClock(func() time.Time { return at }))
		_, err := store.Capture([]string{"a.txt"})
		require.NoError(t, err)
	}

	out, err := runCLI(t, "prune", "-w", ws, "--no-daemon", "--max", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 snapshots, 1 kept")

	l := listJSON(t, ws)
	require.Len(t, l.Snapshots, 1)
	assert.Equal(t, snapshot.NewID(base.Add(2*time.Minute)), l.Snapshots[0].ID)
}

func TestPathErrors(t *testing.T) {
	ws := isolate(t)

	_, err := runCLI(t, "path", "-w", ws, "yesterday", "a.txt")
	assert.ErrorIs(t, err, snapshot.ErrInvalidPath)

	_, err = runCLI(t, "path", "-w", ws, "20240101-120000", filepath.Join(t.TempDir(), "a.txt"))
	assert.ErrorIs(t, err, snapshot.ErrInvalidPath)

	_, err = runCLI(t, "path", "-w", ws, "20240101-120000", "a.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in snapshot")
}

func TestListUnknownFormat(t *testing.T) {
	ws := isolate(t)

	_, err := runCLI(t, "list", "-w", ws, "--format", "xml")
	assert.Error(t, err)
}

func TestDaemonStatusNotRunning(t *testing.T) {
	ws := isolate(t)

	out, err := runCLI(t, "daemon", "status", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "not running")

	_, err = runCLI(t, "daemon", "stop", "-w", ws)
	assert.Error(t, err)
}

func TestConfigShowReportsOverrides(t *testing.T) {
	ws := isolate(t)
	t.Setenv("NOGIT_MAX_SNAPSHOTS", "7")

	out, err := runCLI(t, "config", "show", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "max_snapshots:             7")
	assert.Contains(t, out, "NOGIT_MAX_SNAPSHOTS=7")
}

func TestConfigInitWritesOnce(t *testing.T) {
	ws := isolate(t)

	out, err := runCLI(t, "config", "init", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default config file")

	out, err = runCLI(t, "config", "init", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestWorkspaceRel(t *testing.T) {
	ws := isolate(t)
	_, err := runCLI(t, "version", "-w", ws)
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "relative", input: "src/main.go", want: "src/main.go"},
		{name: "relative unclean", input: "src/../notes.md", want: "notes.md"},
		{name: "absolute inside", input: filepath.Join(ws, "src", "main.go"), want: "src/main.go"},
		{name: "absolute outside", input: filepath.Join(filepath.Dir(ws), "other.txt"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := workspaceRel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestEnvOverrides(t *testing.T) {
	got := envOverrides([]string{"PATH=/bin", "NOGIT_ENABLE=false", "XNOGIT_A=1"})
	assert.Equal(t, []string{"NOGIT_ENABLE=false"}, got)
}

func TestWatchNeedsDaemon(t *testing.T) {
	ws := isolate(t)

	_, err := runCLI(t, "watch", "-w", ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no daemon running")
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)

	line := formatEvent(&nogitv1.Event{
		Kind:    nogitv1.EventCaptured,
		ID:      "20240301-093000",
		Message: "noGit snapshot saved (2 files)",
		At:      at,
	})
	assert.Contains(t, line, "09:30:00")
	assert.Contains(t, line, "noGit snapshot saved (2 files)")
	assert.Contains(t, line, "20240301-093000")

	line = formatEvent(&nogitv1.Event{
		Kind:    nogitv1.EventPruned,
		Removed: []string{"20240101-000000", "20240102-000000"},
		Message: "noGit pruned 2 snapshots",
		At:      at,
	})
	assert.Contains(t, line, "20240101-000000 20240102-000000")
}
