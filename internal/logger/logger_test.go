package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte("stale line\n"), 0o600); err != nil {
		t.Fatalf("seed log file: %v", err)
	}

	log, err := New(Options{Debug: true, File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Debug("started getting similarity score")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	content := string(data)
	if strings.Contains(content, "stale line") {
		t.Fatalf("expected log file to be truncated, got %q", content)
	}
	if !strings.Contains(content, `"step":"started getting similarity score"`) {
		t.Fatalf("expected entry in log file, got %q", content)
	}
}

func TestNewRejectsUnwritableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "app.log")
	if _, err := New(Options{File: path}); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}
