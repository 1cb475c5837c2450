package daemon

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

// RecoverFromStaleDaemon removes the files a crashed daemon left behind:
// PID file, socket, status file and the journal's LOCK. A missing or
// unreadable PID file means there is nothing to recover. It returns
// ErrDaemonAlreadyRunning when the recorded process is alive.
func RecoverFromStaleDaemon(pidPath, socketPath, dataDir string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return nil //nolint:nilerr // no PID file, nothing stale
	}
	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	log := logging.Get("daemon").With("stale_pid", pid)
	for _, path := range []string{
		pidPath,
		socketPath,
		StatusPath(socketPath),
		filepath.Join(JournalPath(dataDir), "LOCK"),
	} {
		switch err := os.Remove(path); {
		case err == nil:
			log.Warn("removed stale daemon file", "path", path)
		case !errors.Is(err, fs.ErrNotExist):
			log.Warn("could not remove stale daemon file", "path", path, "error", err)
		}
	}
	return nil
}
