package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMigrationsOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.sql": "SELECT 2;",
		"0001_init.sql":   "SELECT 1;",
		"README.md":       "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "9999_dir.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	migrations, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Name != "0001_init.sql" || migrations[1].SQL != "SELECT 2;" {
		t.Fatalf("unexpected order %+v", migrations)
	}
}

func TestLoadMigrationsRepositoryFiles(t *testing.T) {
	migrations, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Name != "0001_init.sql" {
		t.Fatalf("unexpected migrations %+v", migrations)
	}
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	if _, err := LoadMigrations(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestNilStoreNotConfigured(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if _, err := s.InsertQuery(ctx, QueryLogEntry{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertQuery: %v", err)
	}
	if _, err := s.ListRecentQueries(ctx, 10); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListRecentQueries: %v", err)
	}
	if _, err := s.DeleteQueriesBefore(ctx, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("DeleteQueriesBefore: %v", err)
	}
	if _, err := s.InsertRefresh(ctx, RefreshRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertRefresh: %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock: %v", err)
	}
	if _, err := s.Migrate(ctx, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Migrate: %v", err)
	}
	s.Close()
}
