package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRule checks a rule before it is written.
func validateRule(rule *model.MerchantRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(rule.AutoCategory) == "" {
		return fmt.Errorf("%w: missing category", model.ErrInvalidRule)
	}
	return nil
}

// validateTransaction checks a parsed transaction before it is written.
func validateTransaction(txn *model.ParsedTransaction) error {
	if txn.Hash == "" {
		return fmt.Errorf("%w: missing hash", ErrInvalidTransaction)
	}
	if txn.Confidence < 0 || txn.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidTransaction)
	}
	return nil
}
