package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/storage"
)

type mockStorage struct{}

func (m *mockStorage) Upload(context.Context, string, io.Reader, int64) error { return nil }
func (m *mockStorage) Delete(context.Context, string) error                  { return nil }
func (m *mockStorage) DeletePrefix(context.Context, string) (int, error)     { return 0, nil }
func (m *mockStorage) Exists(context.Context, string) (bool, error)          { return false, nil }

// ---------------------------------------------------------------------------
// Register / NewStorage
// ---------------------------------------------------------------------------

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("test-backend", func(_ *config.Config) (storage.Storage, error) {
		return &mockStorage{}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "test-backend"

	s, err := storage.NewStorage(cfg)
	if err != nil {
		t.Fatalf("NewStorage() error: %v", err)
	}
	if s == nil {
		t.Fatal("NewStorage() returned nil")
	}

	found := false
	for _, name := range storage.Registered() {
		if name == "test-backend" {
			found = true
		}
	}
	if !found {
		t.Errorf("Registered() = %v, missing test-backend", storage.Registered())
	}
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "completely-unknown-backend"

	_, err := storage.NewStorage(cfg)
	if err == nil {
		t.Fatal("NewStorage() expected error for unknown backend, got nil")
	}
	if !strings.Contains(err.Error(), "completely-unknown-backend") {
		t.Errorf("error %q should name the backend", err)
	}
}

// ---------------------------------------------------------------------------
// DirPrefix
// ---------------------------------------------------------------------------

func TestDirPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"class/user", "class/user/"},
		{"class/user/", "class/user/"},
		{"class//", "class/"},
	}
	for _, tt := range tests {
		if got := storage.DirPrefix(tt.in); got != tt.want {
			t.Errorf("DirPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
