package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IBM/taxinomitis-sub001/internal/config"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

func upload(t *testing.T, s *LocalStorage, key, content string) {
	t.Helper()
	if err := s.Upload(context.Background(), key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Upload(%q): %v", key, err)
	}
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_CreatesDirectory(t *testing.T) {
	subDir := filepath.Join(t.TempDir(), "a", "b", "c")
	if _, err := New(&config.LocalStorageConfig{BasePath: subDir}); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(subDir); os.IsNotExist(err) {
		t.Error("New() did not create base directory")
	}
}

// ---------------------------------------------------------------------------
// Upload / Exists
// ---------------------------------------------------------------------------

func TestUploadAndExists(t *testing.T) {
	s := newTestStorage(t)
	upload(t, s, "class1/user1/proj1/img1", "png")

	ok, err := s.Exists(context.Background(), "class1/user1/proj1/img1")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if !ok {
		t.Error("Exists() = false after Upload")
	}

	ok, err = s.Exists(context.Background(), "class1/user1/proj1/missing")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if ok {
		t.Error("Exists() = true for missing object")
	}
}

func TestUpload_RejectsEscapingKey(t *testing.T) {
	s := newTestStorage(t)
	err := s.Upload(context.Background(), "../outside", strings.NewReader("x"), 1)
	if err == nil {
		t.Error("Upload() expected error for key escaping the root")
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestDelete_RemovesObjectAndEmptyDirs(t *testing.T) {
	s := newTestStorage(t)
	upload(t, s, "class1/user1/proj1/img1", "png")

	if err := s.Delete(context.Background(), "class1/user1/proj1/img1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "class1")); !os.IsNotExist(err) {
		t.Error("Delete() should prune empty parent directories")
	}
}

func TestDelete_MissingIsNotAnError(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete(context.Background(), "class1/nothing"); err != nil {
		t.Errorf("Delete() of missing object returned %v", err)
	}
}

// ---------------------------------------------------------------------------
// DeletePrefix
// ---------------------------------------------------------------------------

func TestDeletePrefix_OnlyMatchingDirectory(t *testing.T) {
	s := newTestStorage(t)
	upload(t, s, "class1/user1/proj1/a", "1")
	upload(t, s, "class1/user1/proj2/b", "2")
	upload(t, s, "class1/user10/proj1/c", "3")

	n, err := s.DeletePrefix(context.Background(), "class1/user1/")
	if err != nil {
		t.Fatalf("DeletePrefix() error: %v", err)
	}
	if n != 2 {
		t.Errorf("DeletePrefix() removed %d, want 2", n)
	}
	ok, _ := s.Exists(context.Background(), "class1/user10/proj1/c")
	if !ok {
		t.Error("DeletePrefix() removed an object belonging to another user")
	}
}

func TestDeletePrefix_Missing(t *testing.T) {
	s := newTestStorage(t)
	n, err := s.DeletePrefix(context.Background(), "class9/")
	if err != nil {
		t.Fatalf("DeletePrefix() error: %v", err)
	}
	if n != 0 {
		t.Errorf("DeletePrefix() = %d, want 0", n)
	}
}

func TestDeletePrefix_RefusesRoot(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.DeletePrefix(context.Background(), "/"); err == nil {
		t.Error("DeletePrefix(\"/\") expected error")
	}
}
