package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

func TestRotationBySize(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "size_rotate.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    512,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := writer.Write([]byte(strings.Repeat("x", 50) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("reading temp dir: %v", err)
	}

	logFiles := 0
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "size_rotate") && strings.HasSuffix(f.Name(), ".log") {
			logFiles++
		}
	}
	if logFiles < 2 {
		t.Errorf("expected at least 2 log files after rotation, got %d", logFiles)
	}
}

func TestWriteAfterClose(t *testing.T) {
	t.Parallel()

	writer, err := logging.NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), logging.RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := writer.Write([]byte("late\n")); err == nil {
		t.Error("Write() after Close() should fail")
	}
}

func TestParseMaxSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 10 * 1024 * 1024, false},
		{"10MB", 10 * 1000 * 1000, false},
		{"1MiB", 1024 * 1024, false},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		got, err := logging.ParseMaxSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMaxSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMaxSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRotationKeepsMaxBackups(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "backups.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    64,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := writer.Write([]byte(strings.Repeat("y", 60) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	rotated, err := filepath.Glob(filepath.Join(tempDir, "backups.*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rotated) == 0 || len(rotated) > 2 {
		t.Errorf("expected 1 or 2 rotated files, got %d: %v", len(rotated), rotated)
	}
}
