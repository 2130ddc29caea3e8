package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/csvload/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	s, closeFn, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "SQLite",
		URL:    filepath.Join(t.TempDir(), "csvload.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer closeFn()

	if got := s.Dialect(); got != "sqlite" {
		t.Errorf("Dialect() = %q, want %q", got, "sqlite")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, _, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle", URL: "x"}); err == nil {
		t.Fatal("Open() expected error for unknown driver")
	}
}
