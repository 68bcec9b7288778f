package testfixtures

import (
	"context"
	"testing"

	"github.com/example/lims-calendar/internal/persistence"
	"github.com/example/lims-calendar/internal/persistence/memory"
	"github.com/example/lims-calendar/internal/persistence/sqlite"
	"github.com/example/lims-calendar/internal/persistence/sqlite/migration"
)

// Store is the repository surface every storage backend provides.
type Store interface {
	persistence.EventRepository
	persistence.UserRepository
	Close() error
}

// StorageHarness exposes a migrated storage backend for integration-style tests.
type StorageHarness struct {
	Store Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *StorageHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a migrated in-memory SQLite database. Callers may
// invoke Close, but the helper also registers a cleanup with tb.
func NewSQLiteHarness(tb testing.TB) *StorageHarness {
	tb.Helper()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, migration.InMemoryTestSQLiteConfig(), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &StorageHarness{
		Store:   store,
		cleanup: func() { _ = store.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}

// NewMemoryHarness returns a harness over the in-memory store.
func NewMemoryHarness(tb testing.TB) *StorageHarness {
	tb.Helper()
	store := memory.New()
	harness := &StorageHarness{
		Store:   store,
		cleanup: func() { _ = store.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}
