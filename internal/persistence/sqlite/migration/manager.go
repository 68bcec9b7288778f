package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	logger   *slog.Logger
}

// NewManager wires a scanner and an executor over db.
func NewManager(db *sql.DB, scanner *Scanner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: NewExecutor(db),
		logger:   logger.With("component", "migration"),
	}
}

// RunMigrations applies every pending migration. It stops at the first failure;
// migrations applied before the failure stay committed.
func (m *Manager) RunMigrations(ctx context.Context) error {
	pending, err := m.PendingMigrations(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date")
		return nil
	}

	for i, migration := range pending {
		m.logger.InfoContext(ctx, "applying migration",
			"version", migration.Version,
			"description", migration.Description,
			"position", i+1,
			"total", len(pending),
		)
		if err := m.executor.Execute(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "error", err)
			return err
		}
	}

	m.logger.InfoContext(ctx, "migrations applied", "count", len(pending), "version", pending[len(pending)-1].Version)
	return nil
}

// PendingMigrations returns the migrations not yet recorded in schema_migrations.
func (m *Manager) PendingMigrations(ctx context.Context) ([]Migration, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, err
	}
	available, err := m.scanner.Scan()
	if err != nil {
		return nil, err
	}
	if err := validateSequence(available); err != nil {
		return nil, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return nil, err
	}

	checksums := make(map[string]string, len(applied))
	for _, record := range applied {
		checksums[record.Version] = record.Checksum
	}

	var pending []Migration
	for _, migration := range available {
		checksum, ok := checksums[migration.Version]
		if !ok {
			pending = append(pending, migration)
			continue
		}
		if checksum != "" && checksum != migration.Checksum {
			return nil, &MigrationError{
				Version:   migration.Version,
				FilePath:  migration.FilePath,
				Operation: "verify checksum",
				Err:       ErrChecksumMismatch,
			}
		}
	}
	return pending, nil
}

// Status reports applied and pending migrations.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	pending, err := m.PendingMigrations(ctx)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{
		PendingCount:      len(pending),
		AppliedMigrations: applied,
		PendingMigrations: pending,
	}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

// validateSequence requires versions to start at 1 and have no gaps.
func validateSequence(migrations []Migration) error {
	for i, migration := range migrations {
		number, err := strconv.Atoi(migration.Version)
		if err != nil {
			return &MigrationError{Version: migration.Version, FilePath: migration.FilePath, Operation: "validate sequence", Err: ErrInvalidVersion}
		}
		if number != i+1 {
			return &MigrationError{
				Version:   migration.Version,
				FilePath:  migration.FilePath,
				Operation: "validate sequence",
				Err:       fmt.Errorf("%w: expected version %03d", ErrInvalidVersion, i+1),
			}
		}
	}
	return nil
}
