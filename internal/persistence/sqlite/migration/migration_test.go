package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *Manager {
	t.Helper()
	db, err := Open(context.Background(), InMemoryTestSQLiteConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db, EmbeddedScanner(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunMigrationsAppliesEmbeddedSchemaOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager := openTestDB(t)

	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.PendingCount != 0 {
		t.Fatalf("expected no pending migrations, got %d", status.PendingCount)
	}
	if status.CurrentVersion != "001" {
		t.Fatalf("expected current version 001, got %q", status.CurrentVersion)
	}
	if len(status.AppliedMigrations) != 1 || status.AppliedMigrations[0].Checksum == "" {
		t.Fatalf("unexpected applied migrations %#v", status.AppliedMigrations)
	}
}

func TestScannerOrdersAndValidates(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
		"m/001_first.sql":  {Data: []byte("-- first\nCREATE TABLE a (id TEXT);")},
		"m/README.md":      {Data: []byte("ignored")},
	}
	migrations, err := NewScanner(fsys, "m").Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(migrations) != 2 || migrations[0].Version != "001" || migrations[1].Version != "002" {
		t.Fatalf("unexpected order %#v", migrations)
	}
	if migrations[0].Description != "first" {
		t.Fatalf("unexpected description %q", migrations[0].Description)
	}

	t.Run("bad name", func(t *testing.T) {
		t.Parallel()
		bad := fstest.MapFS{"m/first.sql": {Data: []byte("SELECT 1;")}}
		if _, err := NewScanner(bad, "m").Scan(); !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})

	t.Run("duplicate version", func(t *testing.T) {
		t.Parallel()
		dup := fstest.MapFS{
			"m/001_a.sql": {Data: []byte("SELECT 1;")},
			"m/01_b.sql":  {Data: []byte("SELECT 1;")},
		}
		if _, err := NewScanner(dup, "m").Scan(); !errors.Is(err, ErrDuplicateVersion) {
			t.Fatalf("expected ErrDuplicateVersion, got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		empty := fstest.MapFS{"m/001_empty.sql": {Data: []byte("  \n")}}
		if _, err := NewScanner(empty, "m").Scan(); !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})
}

func TestValidateSequenceRejectsGaps(t *testing.T) {
	t.Parallel()

	err := validateSequence([]Migration{{Version: "001"}, {Version: "003"}})
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
	if err := validateSequence([]Migration{{Version: "001"}, {Version: "002"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSplitStatementsDropsComments(t *testing.T) {
	t.Parallel()

	got := splitStatements("-- header\nCREATE TABLE a (id TEXT);\n\n-- trailing\n;CREATE INDEX i ON a(id);")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(got), got)
	}
	if got[0] != "CREATE TABLE a (id TEXT)" {
		t.Fatalf("unexpected first statement %q", got[0])
	}
}

func TestSQLiteConfigValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultSQLiteConfig("data/lims.db").Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	cfg := DefaultSQLiteConfig("")
	cfg.JournalMode = "SIDEWAYS"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestConnectionStringAddsPragmas(t *testing.T) {
	t.Parallel()

	got := InMemoryTestSQLiteConfig().ConnectionString()
	want := ":memory:?_pragma=busy_timeout%281000%29&_pragma=foreign_keys%281%29&_pragma=journal_mode%28MEMORY%29&_pragma=synchronous%28OFF%29"
	if got != want {
		t.Fatalf("ConnectionString = %q, want %q", got, want)
	}
}
