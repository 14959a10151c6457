package store

import (
	"fmt"
)

// migrate runs all pending migrations
func (s *Store) migrate() error {
	// Create migrations table if it doesn't exist
	createMigrationsTableSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get the current schema version
	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	s.logger.Debug("Current schema version", "version", currentVersion)

	// Define all migrations
	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE fetch_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					repo TEXT NOT NULL,
					ref TEXT NOT NULL,
					method TEXT NOT NULL,
					mirror TEXT,
					success BOOLEAN NOT NULL,
					size_bytes INTEGER DEFAULT 0,
					speed_mbps REAL DEFAULT 0,
					download_time_ms INTEGER DEFAULT 0,
					total_time_ms INTEGER DEFAULT 0,
					retry_count INTEGER DEFAULT 0,
					fallback_used BOOLEAN DEFAULT 0,
					error_class TEXT,
					error_message TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_fetch_history_repo ON fetch_history(repo);
				CREATE INDEX idx_fetch_history_created ON fetch_history(created_at);
			`,
		},
		{
			version: 2,
			sql: `
				CREATE TABLE probe_stats (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					mirror TEXT NOT NULL,
					kind TEXT NOT NULL,
					healthy BOOLEAN DEFAULT 0,
					response_time_ms INTEGER DEFAULT 0,
					speed_mbps REAL DEFAULT 0,
					latency_ms INTEGER DEFAULT 0,
					error TEXT,
					checked_at DATETIME NOT NULL
				);

				CREATE INDEX idx_probe_stats_mirror ON probe_stats(mirror);
			`,
		},
	}

	// Run pending migrations
	for _, mig := range migrations {
		if mig.version > currentVersion {
			s.logger.Info("Running migration", "version", mig.version)

			if err := s.runMigration(mig.version, mig.sql); err != nil {
				return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
			}

			s.logger.Info("Migration completed", "version", mig.version)
		}
	}

	return nil
}

// runMigration executes a migration and records it
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Execute the migration SQL
	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	// Record the migration
	insertSQL := "INSERT INTO migrations (version) VALUES (?)"
	if _, err := tx.Exec(insertSQL, version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}
