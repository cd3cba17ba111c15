package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS merchant_rules (
					id TEXT PRIMARY KEY,
					source_name TEXT NOT NULL DEFAULT '',
					clean_source_name TEXT NOT NULL DEFAULT '',
					match_mode TEXT NOT NULL DEFAULT 'fuzzy' CHECK (match_mode IN ('exact', 'fuzzy')),
					auto_category TEXT NOT NULL,
					auto_sub_category TEXT,
					position INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_merchant_rules_position ON merchant_rules(position)`,

				`CREATE TABLE IF NOT EXISTS noise_filters (
					pattern TEXT PRIMARY KEY COLLATE NOCASE,
					position INTEGER NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					hash TEXT PRIMARY KEY,
					date TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					raw_descriptor TEXT NOT NULL,
					clean_descriptor TEXT NOT NULL DEFAULT '',
					merchant_name TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL DEFAULT '',
					sub_category TEXT,
					rule_id TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					matched INTEGER NOT NULL DEFAULT 0,
					issues TEXT NOT NULL DEFAULT '[]',
					source TEXT NOT NULL DEFAULT '',
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_matched ON transactions(matched)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Key/value table for the rule snapshot cache",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS kv_store (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Store enrichment suggestions on transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE transactions ADD COLUMN suggested_category TEXT`,
				`ALTER TABLE transactions ADD COLUMN suggested_sub_category TEXT`,
				`ALTER TABLE transactions ADD COLUMN suggestion_confidence REAL`,
				`ALTER TABLE transactions ADD COLUMN suggestion_source TEXT`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
