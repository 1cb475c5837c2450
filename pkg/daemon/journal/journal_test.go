package journal_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/nogit/pkg/daemon/journal"
)

func TestDirtyPathsPersist(t *testing.T) {
	dir := t.TempDir()

	db, err := journal.Open(dir)
	require.NoError(t, err)

	ws := db.ForWorkspace("/work/a")
	require.NoError(t, ws.Add("sub/b.txt"))
	require.NoError(t, ws.Add("a.txt"))
	require.NoError(t, ws.Add("a.txt"))
	require.NoError(t, db.ForWorkspace("/work/ab").Add("other.txt"))
	require.NoError(t, db.Close())

	db, err = journal.Open(dir)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.ForWorkspace("/work/a").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, got, "workspaces sharing a prefix stay separate")

	require.NoError(t, db.ForWorkspace("/work/a").Remove("a.txt", "missing.txt"))
	got, err = db.ForWorkspace("/work/a").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/b.txt"}, got)

	require.NoError(t, db.ForWorkspace("/work/a").Remove())
}

func TestStats(t *testing.T) {
	db, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ws := db.ForWorkspace("/work/a")

	stats, err := ws.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Captures)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ws.RecordCapture("20240101-120000", 2, at))
	require.NoError(t, ws.RecordCapture("20240101-121000", 3, at.Add(10*time.Minute)))

	stats, err = ws.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Captures)
	assert.Equal(t, int64(5), stats.FilesCopied)
	assert.Equal(t, "20240101-121000", stats.LastID)
	assert.True(t, stats.LastAt.Equal(at.Add(10*time.Minute)))
}

func TestSchema(t *testing.T) {
	dir := t.TempDir()

	db, err := journal.Open(dir)
	require.NoError(t, err)

	schema := db.GetSchema()
	require.NotNil(t, schema)
	assert.Equal(t, journal.CurrentSchemaVersion, schema.Version)

	require.NoError(t, db.SetSchema(&journal.Schema{Version: journal.CurrentSchemaVersion + 1}))
	require.NoError(t, db.Close())

	_, err = journal.Open(dir)
	assert.True(t, errors.Is(err, journal.ErrNewerSchema))
}
