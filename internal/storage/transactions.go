package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

const transactionColumns = `hash, date, amount, raw_descriptor, clean_descriptor, merchant_name,
	category, sub_category, rule_id, confidence, matched, issues, source,
	suggested_category, suggested_sub_category, suggestion_confidence, suggestion_source`

// SaveResult counts what SaveTransactions did.
type SaveResult struct {
	Inserted int
	Updated  int
}

// SaveTransactions upserts transactions by hash. A record seen before has
// its categorization refreshed; its raw fields are left alone.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.ParsedTransaction) (SaveResult, error) {
	if err := validateContext(ctx); err != nil {
		return SaveResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := tx.PrepareContext(ctx, `SELECT 1 FROM transactions WHERE hash = ?`)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = exists.Close() }()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			clean_descriptor = excluded.clean_descriptor,
			merchant_name = excluded.merchant_name,
			category = excluded.category,
			sub_category = excluded.sub_category,
			rule_id = excluded.rule_id,
			confidence = excluded.confidence,
			matched = excluded.matched,
			issues = excluded.issues,
			suggested_category = excluded.suggested_category,
			suggested_sub_category = excluded.suggested_sub_category,
			suggestion_confidence = excluded.suggestion_confidence,
			suggestion_source = excluded.suggestion_source`)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = upsert.Close() }()

	var result SaveResult
	for i := range transactions {
		txn := &transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if err := validateTransaction(txn); err != nil {
			return SaveResult{}, fmt.Errorf("transaction at index %d: %w", i, err)
		}

		var one int
		switch err := exists.QueryRowContext(ctx, txn.Hash).Scan(&one); {
		case errors.Is(err, sql.ErrNoRows):
			result.Inserted++
		case err != nil:
			return SaveResult{}, fmt.Errorf("failed to check transaction %s: %w", txn.Hash, err)
		default:
			result.Updated++
		}

		args, err := transactionArgs(txn)
		if err != nil {
			return SaveResult{}, err
		}
		if _, err := upsert.ExecContext(ctx, args...); err != nil {
			return SaveResult{}, fmt.Errorf("failed to save transaction %s: %w", txn.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return result, nil
}

// GetTransaction returns one transaction by hash.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, hash string) (*model.ParsedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ResolveHash expands a hash prefix into the full hash of the only
// transaction it matches.
func (s *SQLiteStorage) ResolveHash(ctx context.Context, prefix string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if err := validateString(prefix, "prefix"); err != nil {
		return "", err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM transactions WHERE substr(hash, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve hash: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return "", fmt.Errorf("failed to scan hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating hashes: %w", err)
	}

	switch len(hashes) {
	case 0:
		return "", common.ErrNotFound
	case 1:
		return hashes[0], nil
	default:
		return "", fmt.Errorf("%w: %s", common.ErrAmbiguous, prefix)
	}
}

// ListPending returns unmatched transactions, oldest first. A limit of
// zero or less returns all of them.
func (s *SQLiteStorage) ListPending(ctx context.Context, limit int) ([]model.ParsedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE matched = 0
		ORDER BY date, rowid
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ParsedTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

// CountTransactions returns the total and unmatched transaction counts.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (total, pending int, err error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN matched = 0 THEN 1 ELSE 0 END), 0) FROM transactions`).
		Scan(&total, &pending)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return total, pending, nil
}

func transactionArgs(txn *model.ParsedTransaction) ([]any, error) {
	issues := txn.Issues
	if issues == nil {
		issues = []model.Issue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("failed to encode issues: %w", err)
	}

	var (
		suggCategory   sql.NullString
		suggSub        sql.NullString
		suggConfidence sql.NullFloat64
		suggSource     sql.NullString
	)
	if s := txn.Suggestion; s != nil {
		suggCategory = sql.NullString{String: s.Category, Valid: true}
		suggSub = nullString(s.SubCategory)
		suggConfidence = sql.NullFloat64{Float64: s.Confidence, Valid: true}
		suggSource = sql.NullString{String: s.Source, Valid: s.Source != ""}
	}

	return []any{
		txn.Hash,
		txn.Date,
		txn.Amount.StringFixed(2),
		txn.RawDescriptor,
		txn.CleanDescriptor,
		txn.MerchantName,
		txn.Category,
		nullString(txn.SubCategory),
		sql.NullString{String: txn.RuleID, Valid: txn.RuleID != ""},
		txn.Confidence,
		txn.Matched,
		string(issuesJSON),
		txn.Source,
		suggCategory,
		suggSub,
		suggConfidence,
		suggSource,
	}, nil
}

func scanTransaction(row rowScanner) (model.ParsedTransaction, error) {
	var (
		txn            model.ParsedTransaction
		sub            sql.NullString
		ruleID         sql.NullString
		issuesJSON     string
		suggCategory   sql.NullString
		suggSub        sql.NullString
		suggConfidence sql.NullFloat64
		suggSource     sql.NullString
	)

	err := row.Scan(&txn.Hash, &txn.Date, &txn.Amount, &txn.RawDescriptor, &txn.CleanDescriptor,
		&txn.MerchantName, &txn.Category, &sub, &ruleID, &txn.Confidence, &txn.Matched,
		&issuesJSON, &txn.Source, &suggCategory, &suggSub, &suggConfidence, &suggSource)
	if errors.Is(err, sql.ErrNoRows) {
		return txn, err
	}
	if err != nil {
		return txn, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.SubCategory = stringPtr(sub)
	txn.RuleID = ruleID.String
	if err := json.Unmarshal([]byte(issuesJSON), &txn.Issues); err != nil {
		return txn, fmt.Errorf("failed to decode issues for %s: %w", txn.Hash, err)
	}
	if len(txn.Issues) == 0 {
		txn.Issues = nil
	}
	if suggCategory.Valid {
		txn.Suggestion = &model.Suggestion{
			Category:    suggCategory.String,
			SubCategory: stringPtr(suggSub),
			Confidence:  suggConfidence.Float64,
			Source:      suggSource.String,
		}
	}
	return txn, nil
}
