package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

func sampleResult() *Result {
	now := time.Date(2024, 1, 1, 14, 0, 0, 0, time.Local)
	return &Result{
		Workspace: "/work/project",
		Root:      "/work/project/.nogit/snapshots",
		Snapshots: []SnapshotInfo{
			NewSnapshotInfo(snapshot.Record{Timestamp: "20240101-130000", Files: []string{"a.txt", "sub/b.txt"}},
				"/work/project/.nogit/snapshots/20240101-130000", 2048),
			NewSnapshotInfo(snapshot.Record{Timestamp: "20240101-120000.001"},
				"/work/project/.nogit/snapshots/20240101-120000.001", 0),
		},
		Pending: []string{"c.txt"},
		Now:     now,
	}
}

func render(t *testing.T, name string, r *Result) string {
	t.Helper()
	formatter, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, formatter.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "plain", "table", "yaml"}, Available())

	_, err := Get("xml")
	assert.Error(t, err)

	reg := NewRegistry()
	reg.Register("custom", func() Formatter { return &PlainFormatter{} })
	f, err := reg.Get("custom")
	require.NoError(t, err)
	assert.IsType(t, &PlainFormatter{}, f)
}

func TestNewSnapshotInfo(t *testing.T) {
	info := NewSnapshotInfo(snapshot.Record{Timestamp: "20240101-120000"}, "/dir", 1536)

	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local), info.Time)
	assert.Equal(t, "1.5 KiB", info.SizeHuman)
	assert.NotNil(t, info.Files)
}

func TestTableFormatter(t *testing.T) {
	r := sampleResult()
	out := render(t, "table", r)

	assert.Contains(t, out, "/work/project")
	assert.Contains(t, out, "20240101-130000")
	assert.Contains(t, out, "20240101-120000.001")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "1 hour ago")
	assert.Contains(t, out, "1 file(s) changed")
	assert.NotContains(t, out, "sub/b.txt")

	r.Verbose = true
	assert.Contains(t, render(t, "table", r), "sub/b.txt")
}

func TestTableFormatterEmpty(t *testing.T) {
	out := render(t, "table", &Result{Workspace: "/w"})
	assert.Contains(t, out, "No snapshots yet")
}

func TestPlainFormatter(t *testing.T) {
	out := render(t, "plain", sampleResult())
	lines := strings.Split(strings.TrimSpace(out), "\n")

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SNAPSHOT"))
	assert.Equal(t, []string{"20240101-130000", "2", "2048", "/work/project/.nogit/snapshots/20240101-130000"}, strings.Fields(lines[1]))
}

func TestJSONFormatter(t *testing.T) {
	out := render(t, "json", sampleResult())

	var got struct {
		Workspace string   `json:"workspace"`
		TotalSize int64    `json:"total_size"`
		Pending   []string `json:"pending"`
		Snapshots []struct {
			ID    string   `json:"id"`
			Files []string `json:"files"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, "/work/project", got.Workspace)
	assert.Equal(t, int64(2048), got.TotalSize)
	assert.Equal(t, []string{"c.txt"}, got.Pending)
	require.Len(t, got.Snapshots, 2)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, got.Snapshots[0].Files)
	assert.Empty(t, got.Snapshots[1].Files)

	empty := render(t, "json", &Result{})
	assert.Contains(t, empty, `"snapshots": []`)
}

func TestYAMLFormatter(t *testing.T) {
	out := render(t, "yaml", sampleResult())

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "/work/project", got["workspace"])
	snaps, ok := got["snapshots"].([]any)
	require.True(t, ok)
	assert.Len(t, snaps, 2)
}
