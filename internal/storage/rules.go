package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

const ruleColumns = `id, source_name, clean_source_name, match_mode, auto_category, auto_sub_category, position, created_at`

// ListRules returns every rule in table order: by position, then by
// creation.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.MerchantRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM merchant_rules ORDER BY position, created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.MerchantRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// GetRule returns one rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.MerchantRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM merchant_rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule stores a new rule. A missing ID is generated, and a rule
// without a position is appended to the end of the table.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.MerchantRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.MatchMode == "" {
		rule.MatchMode = model.MatchFuzzy
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if rule.Position <= 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM merchant_rules`).Scan(&rule.Position); err != nil {
			return fmt.Errorf("failed to compute rule position: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO merchant_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		strings.TrimSpace(rule.SourceName),
		strings.TrimSpace(rule.CleanSourceName),
		string(rule.MatchMode),
		strings.TrimSpace(rule.AutoCategory),
		nullString(rule.AutoSubCategory),
		rule.Position,
		rule.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: rule %s", common.ErrDuplicateEntry, rule.ID)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return tx.Commit()
}

// MoveRule changes a rule's position in the table.
func (s *SQLiteStorage) MoveRule(ctx context.Context, id string, position int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE merchant_rules SET position = ? WHERE id = ?`, position, id)
	if err != nil {
		return fmt.Errorf("failed to move rule: %w", err)
	}
	return requireAffected(result)
}

// DeleteRule removes a rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM merchant_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (model.MerchantRule, error) {
	var (
		rule      model.MerchantRule
		mode      string
		sub       sql.NullString
		createdAt sql.NullTime
	)
	err := row.Scan(&rule.ID, &rule.SourceName, &rule.CleanSourceName, &mode,
		&rule.AutoCategory, &sub, &rule.Position, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rule, err
	}
	if err != nil {
		return rule, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.MatchMode = model.MatchMode(mode)
	rule.AutoSubCategory = stringPtr(sub)
	if createdAt.Valid {
		rule.CreatedAt = createdAt.Time
	}
	return rule, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*s), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
