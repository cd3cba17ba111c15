package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// ListNoiseFilters returns the filters in application order.
func (s *SQLiteStorage) ListNoiseFilters(ctx context.Context) ([]model.NoiseFilter, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT pattern, position FROM noise_filters ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query noise filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var filters []model.NoiseFilter
	for rows.Next() {
		var f model.NoiseFilter
		if err := rows.Scan(&f.Pattern, &f.Position); err != nil {
			return nil, fmt.Errorf("failed to scan noise filter: %w", err)
		}
		filters = append(filters, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating noise filters: %w", err)
	}
	return filters, nil
}

// AddNoiseFilter appends a filter. Patterns are unique ignoring case.
func (s *SQLiteStorage) AddNoiseFilter(ctx context.Context, pattern string) (model.NoiseFilter, error) {
	if err := validateContext(ctx); err != nil {
		return model.NoiseFilter{}, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return model.NoiseFilter{}, err
	}

	f := model.NoiseFilter{Pattern: pattern}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO noise_filters (pattern, position)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM noise_filters))
		RETURNING position`, pattern).Scan(&f.Position)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.NoiseFilter{}, fmt.Errorf("%w: noise filter %q", common.ErrDuplicateEntry, pattern)
		}
		return model.NoiseFilter{}, fmt.Errorf("failed to add noise filter: %w", err)
	}
	return f, nil
}

// DeleteNoiseFilter removes a filter, matching the pattern ignoring case.
func (s *SQLiteStorage) DeleteNoiseFilter(ctx context.Context, pattern string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM noise_filters WHERE pattern = ?`, pattern)
	if err != nil {
		return fmt.Errorf("failed to delete noise filter: %w", err)
	}
	return requireAffected(result)
}
