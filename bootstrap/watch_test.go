package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRequirementsWatcherFiresOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := filepath.Join(tmpDir, "requirements.txt")
	if err := os.WriteFile(manifest, []byte("streamlit\n"), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	changed := make(chan struct{}, 1)
	watcher, err := NewRequirementsWatcher(manifest, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewRequirementsWatcher returned error: %v", err)
	}

	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer watcher.Stop()

	// Give the watcher a moment to register before modifying the file.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(manifest, []byte("streamlit\npandas\n"), 0644); err != nil {
		t.Fatalf("Failed to modify manifest: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher did not fire after manifest change")
	}
}

func TestRequirementsWatcherIgnoresOtherFiles(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := filepath.Join(tmpDir, "requirements.txt")
	if err := os.WriteFile(manifest, []byte("streamlit\n"), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	changed := make(chan struct{}, 1)
	watcher, err := NewRequirementsWatcher(manifest, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewRequirementsWatcher returned error: %v", err)
	}

	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	other := filepath.Join(tmpDir, "notes.txt")
	if err := os.WriteFile(other, []byte("unrelated\n"), 0644); err != nil {
		t.Fatalf("Failed to write unrelated file: %v", err)
	}

	select {
	case <-changed:
		t.Error("Watcher fired for an unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestRequirementsWatcherStopTwice(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := filepath.Join(tmpDir, "requirements.txt")
	if err := os.WriteFile(manifest, []byte("streamlit\n"), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	watcher, err := NewRequirementsWatcher(manifest, nil, nil)
	if err != nil {
		t.Fatalf("NewRequirementsWatcher returned error: %v", err)
	}
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	watcher.Stop()
	watcher.Stop() // Second stop must be a no-op.
}

func TestRequirementsWatcherStopWithoutStart(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "requirements.txt")
	watcher, err := NewRequirementsWatcher(manifest, nil, nil)
	if err != nil {
		t.Fatalf("NewRequirementsWatcher returned error: %v", err)
	}

	watcher.Stop()

	// The underlying watch must be released even though Start never ran.
	select {
	case _, ok := <-watcher.watcher.Events:
		if ok {
			t.Error("Expected events channel to be closed after Stop")
		}
	case <-time.After(time.Second):
		t.Error("Events channel still open after Stop without Start")
	}
}
