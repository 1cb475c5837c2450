package daemon_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jamesainslie/nogit/pkg/daemon"
)

func stalePaths(t *testing.T) (pidPath, socketPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "nogit.pid"), filepath.Join(dir, "nogit.sock"), dir
}

func TestRecoverFromStaleDaemon_NoPIDFile(t *testing.T) {
	pidPath, socketPath, dataDir := stalePaths(t)

	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dataDir); err != nil {
		t.Errorf("Expected nil when no PID file exists, got %v", err)
	}
}

func TestRecoverFromStaleDaemon_ProcessRunning(t *testing.T) {
	pidPath, socketPath, dataDir := stalePaths(t)

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dataDir)
	if !errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
		t.Errorf("Expected ErrDaemonAlreadyRunning when process is running, got %v", err)
	}

	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		t.Error("PID file should not have been removed when process is running")
	}
}

func TestRecoverFromStaleDaemon_StaleProcess(t *testing.T) {
	pidPath, socketPath, dataDir := stalePaths(t)

	journalDir := daemon.JournalPath(dataDir)
	if err := os.MkdirAll(journalDir, 0o755); err != nil {
		t.Fatalf("Failed to create journal directory: %v", err)
	}
	lockPath := filepath.Join(journalDir, "LOCK")

	files := map[string]string{
		pidPath:    "999999999",
		socketPath: "fake socket",
		lockPath:   "fake lock",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dataDir); err != nil {
		t.Errorf("Expected nil after cleaning up stale daemon, got %v", err)
	}

	for path := range files {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("File %s should have been removed after recovery", path)
		}
	}
}

func TestRecoverFromStaleDaemon_InvalidPIDFile(t *testing.T) {
	pidPath, socketPath, dataDir := stalePaths(t)

	if err := os.WriteFile(pidPath, []byte("not-a-number"), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dataDir); err != nil {
		t.Errorf("Expected nil for invalid PID file, got %v", err)
	}
}

func TestRecoverFromStaleDaemon_RemovesStatusFile(t *testing.T) {
	pidPath, socketPath, dataDir := stalePaths(t)

	statusPath := daemon.StatusPath(socketPath)
	for path, content := range map[string]string{pidPath: "999999999", statusPath: "{}"} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dataDir); err != nil {
		t.Fatalf("RecoverFromStaleDaemon: %v", err)
	}
	if _, err := os.Stat(statusPath); !os.IsNotExist(err) {
		t.Error("stale status file should have been removed")
	}
}
