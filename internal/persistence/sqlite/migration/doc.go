// Package migration applies versioned schema changes to the calendar's
// SQLite database.
//
// Migration files are named {version}_{description}.sql (for example
// "001_initial_schema.sql") and are embedded into the binary. Applied
// versions are tracked in the schema_migrations table so each file runs
// exactly once, inside its own transaction.
//
// Example usage:
//
//	db, err := migration.Open(migration.DefaultSQLiteConfig(dsn))
//	if err != nil {
//		return err
//	}
//	manager := migration.NewManager(db, migration.EmbeddedScanner(), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
