package fsutil

import (
	"path/filepath"
	"testing"
)

// TestFileRoundTrip tests write, exists, read on a temp artifact
func TestFileRoundTrip(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "run.log"))

	if f.Exists() {
		t.Fatal("file should not exist before write")
	}
	if !f.IsEmpty() {
		t.Fatal("missing file should report empty")
	}

	if err := f.Write("hello\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !f.Exists() {
		t.Fatal("file should exist after write")
	}
	if f.IsEmpty() {
		t.Fatal("file should not be empty after write")
	}

	got, err := f.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "hello\n" {
		t.Errorf("expected %q, got %q", "hello\n", got)
	}
}

// TestFileRemove tests that removing a missing artifact is not an error
func TestFileRemove(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "run.out"))

	if err := f.Remove(); err != nil {
		t.Fatalf("removing a missing file should not fail: %v", err)
	}

	if err := f.Write("x"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := f.Remove(); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if f.Exists() {
		t.Error("file should be gone after remove")
	}
}

// TestFileBase tests path accessors
func TestFileBase(t *testing.T) {
	f := NewFile("/work/job-1/queue.err")
	if f.Path() != "/work/job-1/queue.err" {
		t.Errorf("unexpected path %q", f.Path())
	}
	if f.Base() != "queue.err" {
		t.Errorf("unexpected base %q", f.Base())
	}
}
