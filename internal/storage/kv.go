package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Get reads a key/value entry. It lets SQLiteStorage back the rule
// snapshot cache.
func (s *SQLiteStorage) Get(key string) (string, bool, error) {
	if err := validateString(key, "key"); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRowContext(context.Background(), `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set replaces a key/value entry.
func (s *SQLiteStorage) Set(key, value string) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
