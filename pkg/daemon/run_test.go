package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	nogitv1 "github.com/jamesainslie/nogit/pkg/api/nogit/v1"
	"github.com/jamesainslie/nogit/pkg/daemon"
	"github.com/jamesainslie/nogit/pkg/nogit/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Workspace:       createWorkspace(t),
		Enable:          false,
		IntervalMinutes: 10,
		MaxSnapshots:    5,
		Daemon: config.DaemonConfig{
			SocketPath: filepath.Join(dir, "d.sock"),
			PIDPath:    filepath.Join(dir, "d.pid"),
			DataDir:    filepath.Join(dir, "data"),
		},
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return cfg
}

// waitForReady waits for the status file, which is written last.
func waitForReady(t *testing.T, cfg *config.Config) {
	t.Helper()
	path := daemon.StatusPath(cfg.SocketPath())
	for range 100 {
		if st, err := daemon.ReadStatus(path); err == nil && st.Status == daemon.StateReady {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("daemon never became ready")
}

func TestRunServesUntilShutdown(t *testing.T) {
	cfg := testConfig(t)

	done := make(chan error, 1)
	go func() { done <- daemon.Run(context.Background(), cfg, nil) }()

	waitForReady(t, cfg)

	conn, err := grpc.NewClient("unix://"+cfg.SocketPath(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	client := nogitv1.NewSnapshotsClient(conn)
	ctx := context.Background()

	if !daemon.IsDaemonRunning(cfg.PIDPath()) {
		t.Error("PID file should name a running process")
	}

	// The watcher picks up a new file.
	if err := os.WriteFile(filepath.Join(cfg.Workspace, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var status *nogitv1.Status
	for range 100 {
		status, err = client.GetStatus(ctx, &nogitv1.GetStatusRequest{})
		if err == nil && status.Dirty > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status == nil || status.Dirty == 0 {
		t.Fatalf("watched change never reached the dirty set: %+v, %v", status, err)
	}
	if status.Watched == 0 {
		t.Error("expected watched directories")
	}

	resp, err := client.SnapshotNow(ctx, &nogitv1.SnapshotNowRequest{})
	if err != nil || resp.Snapshot == nil {
		t.Fatalf("SnapshotNow = %+v, %v", resp, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Workspace, ".nogit", "snapshots", resp.Snapshot.ID, "new.txt")); err != nil {
		t.Errorf("captured copy missing: %v", err)
	}

	if _, err := client.Shutdown(ctx, &nogitv1.ShutdownRequest{}); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}

	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Error("PID file should be removed on exit")
	}
	if _, err := os.Stat(cfg.SocketPath()); !os.IsNotExist(err) {
		t.Error("socket should be removed on exit")
	}
}

func TestRunRejectsSecondInstance(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx, cfg, nil) }()
	waitForReady(t, cfg)

	err := daemon.Run(context.Background(), cfg, nil)
	if !errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
		t.Errorf("second Run error = %v, want ErrDaemonAlreadyRunning", err)
	}
	if st, err := daemon.ReadStatus(daemon.StatusPath(cfg.SocketPath())); err != nil || st.Status != daemon.StateReady {
		t.Errorf("running daemon's status was overwritten: %+v, %v", st, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("first Run returned %v", err)
	}
}

func TestRunMissingWorkspaceWritesErrorStatus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workspace = filepath.Join(t.TempDir(), "missing")

	if err := daemon.Run(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error for a missing workspace")
	}

	st, err := daemon.ReadStatus(daemon.StatusPath(cfg.SocketPath()))
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if st.Status != daemon.StateError {
		t.Errorf("status = %s, want error", st.Status)
	}
}
