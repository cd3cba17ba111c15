package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/tally/internal/model"
)

var (
	severityTag = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	unclosedTag = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// genericNames are NAME values that say nothing about the merchant; MEMO
// is used instead when present.
var genericNames = map[string]struct{}{
	"DEBIT":           {},
	"CREDIT":          {},
	"PURCHASE":        {},
	"PAYMENT":         {},
	"POS TRANSACTION": {},
	"CARD PURCHASE":   {},
}

// OFXReader reads OFX and QFX statements.
type OFXReader struct{}

// NewOFXReader creates an OFX reader.
func NewOFXReader() *OFXReader {
	return &OFXReader{}
}

// preprocess fixes formatting problems ofxgo rejects.
func (o *OFXReader) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityTag.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTag.ReplaceAllString(content, "$1>")
}

// Read implements Reader. Each statement line becomes one raw record with
// the amount and posting date rendered as text, so that OFX input goes
// through the same parsers as CSV input.
func (o *OFXReader) Read(ctx context.Context, r io.Reader, source string) ([]model.RawRecord, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(o.preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var (
		records            []model.RawRecord
		bankStmts, ccStmts int
	)

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			bankStmts++
			records = append(records, o.convert(stmt.BankTranList.Transactions, source)...)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			ccStmts++
			records = append(records, o.convert(stmt.BankTranList.Transactions, source)...)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("Parsed OFX file",
		"source", source,
		"records", len(records),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return records, nil
}

func (o *OFXReader) convert(txns []ofxgo.Transaction, source string) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(txns))
	for _, tx := range txns {
		records = append(records, model.RawRecord{
			RawAmount:     tx.TrnAmt.FloatString(2),
			RawDate:       tx.DtPosted.Format("2006-01-02"),
			RawDescriptor: descriptor(tx),
			ID:            string(tx.FiTID),
			Source:        source,
			Line:          string(tx.FiTID),
		})
	}
	return records
}

// descriptor prefers PAYEE, then NAME, then MEMO when NAME is generic.
func descriptor(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if _, generic := genericNames[strings.ToUpper(name)]; generic && tx.Memo != "" {
		name = strings.TrimSpace(string(tx.Memo))
	}
	return name
}
