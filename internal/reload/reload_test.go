package reload

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHashFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "calibration.json")
	content := []byte(`{"ModelID":"quantum_proxy_v3"}`)

	if err := os.WriteFile(testFile, content, 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	hash1, size1, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if size1 != int64(len(content)) {
		t.Errorf("size = %d, want %d", size1, len(content))
	}

	hash2, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("second HashFile: %v", err)
	}
	if hash1 != hash2 {
		t.Error("same content should hash identically")
	}

	if err := os.WriteFile(testFile, []byte("different"), 0o600); err != nil {
		t.Fatalf("rewrite test file: %v", err)
	}
	hash3, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("third HashFile: %v", err)
	}
	if hash1 == hash3 {
		t.Error("different content should hash differently")
	}
}

func TestHashFileNotFound(t *testing.T) {
	if _, _, err := HashFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestWatcherCreation(t *testing.T) {
	tmpDir := t.TempDir()
	w, err := New([]string{tmpDir}, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(w.WatchedPaths()) != 1 {
		t.Errorf("watched paths = %d, want 1", len(w.WatchedPaths()))
	}
	if w.TrackedFiles() != 0 {
		t.Errorf("tracked files before Start = %d, want 0", w.TrackedFiles())
	}
}

func TestWatcherDetectsSettledChange(t *testing.T) {
	tmpDir := t.TempDir()
	calPath := filepath.Join(tmpDir, "calibration.json")
	if err := os.WriteFile(calPath, []byte(`{"ModelID":"a"}`), 0o600); err != nil {
		t.Fatalf("write initial file: %v", err)
	}

	w, err := New([]string{calPath}, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(calPath, []byte(`{"ModelID":"b"}`), 0o600); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	select {
	case change := <-w.Changes():
		if change.Path != calPath {
			t.Errorf("changed path = %q, want %q", change.Path, calPath)
		}
	case err := <-w.Errors():
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settled change")
	}
}
