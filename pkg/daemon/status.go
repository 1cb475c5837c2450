package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Startup states recorded in the status file.
const (
	StateReady = "ready"
	StateError = "error"
)

// StatusFile is written by nogitd once startup succeeds or fails, so a
// launching client can report the outcome.
type StatusFile struct {
	Status    string    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	Instance  string    `json:"instance,omitempty"`
	Workspace string    `json:"workspace,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// WriteStatusReady records a successful start.
func WriteStatusReady(path, instance, workspace string) error {
	return writeStatus(path, &StatusFile{
		Status:    StateReady,
		PID:       os.Getpid(),
		Instance:  instance,
		Workspace: workspace,
		At:        time.Now(),
	})
}

// WriteStatusError records a failed start.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{
		Status: StateError,
		Error:  err.Error(),
		At:     time.Now(),
	})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath returns the status file next to a daemon socket.
func StatusPath(socketPath string) string {
	return strings.TrimSuffix(socketPath, filepath.Ext(socketPath)) + ".status"
}
