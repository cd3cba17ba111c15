package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/similarity"
)

// DefaultHeaderThreshold is the minimum similarity for a header cell to
// be mapped onto a known field.
const DefaultHeaderThreshold = 0.75

// Field is a column the importer needs.
type Field string

// Known fields.
const (
	FieldDate        Field = "date"
	FieldAmount      Field = "amount"
	FieldDescription Field = "description"
)

var requiredFields = []Field{FieldDate, FieldAmount, FieldDescription}

// fieldAliases lists the header spellings seen in bank exports.
var fieldAliases = []struct {
	field Field
	names []string
}{
	{FieldDate, []string{"date", "dato", "bogført", "bogføringsdato", "posting date", "transaction date", "buchungstag", "datum"}},
	{FieldAmount, []string{"amount", "beløb", "belob", "betrag", "value", "amount (dkk)"}},
	{FieldDescription, []string{"description", "tekst", "text", "beskrivelse", "merchant", "payee", "narrative", "verwendungszweck", "details"}},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures CSV reading.
type CSVOptions struct {
	// Columns maps fields to exact header names and bypasses fuzzy mapping.
	Columns map[Field]string
	// HeaderThreshold overrides DefaultHeaderThreshold.
	HeaderThreshold float64
	// Delimiter is detected from the header line when zero.
	Delimiter rune
}

// CSVReader reads delimited bank exports with a header row.
type CSVReader struct {
	opts CSVOptions
}

// NewCSVReader creates a CSV reader.
func NewCSVReader(opts CSVOptions) *CSVReader {
	if opts.HeaderThreshold <= 0 {
		opts.HeaderThreshold = DefaultHeaderThreshold
	}
	return &CSVReader{opts: opts}
}

// Read implements Reader.
func (c *CSVReader) Read(ctx context.Context, r io.Reader, source string) ([]model.RawRecord, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	delim := c.opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s is empty", common.ErrNoRecords, source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols, err := c.mapHeader(header)
	if err != nil {
		return nil, err
	}
	slog.Debug("Mapped CSV columns", "source", source, "columns", cols)

	var records []model.RawRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		if blank(row) {
			continue
		}

		line, _ := cr.FieldPos(0)
		records = append(records, model.RawRecord{
			RawDate:       cell(row, cols[FieldDate]),
			RawAmount:     cell(row, cols[FieldAmount]),
			RawDescriptor: cell(row, cols[FieldDescription]),
			Source:        source,
			Line:          strconv.Itoa(line),
		})
	}

	slog.Info("Parsed CSV file", "source", source, "records", len(records))
	return records, nil
}

// mapHeader assigns each required field a column index. Each column is
// scored against every alias; a column feeds at most one field and the
// first column to claim a field keeps it.
func (c *CSVReader) mapHeader(header []string) (map[Field]int, error) {
	cols := make(map[Field]int, len(requiredFields))

	if len(c.opts.Columns) > 0 {
		for field, name := range c.opts.Columns {
			for i, h := range header {
				if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
					cols[field] = i
					break
				}
			}
		}
	}

	var (
		aliases []string
		owners  []Field
	)
	for _, fa := range fieldAliases {
		for _, n := range fa.names {
			aliases = append(aliases, n)
			owners = append(owners, fa.field)
		}
	}

	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			continue
		}
		best, ok := similarity.BestMatch(h, aliases, c.opts.HeaderThreshold)
		if !ok {
			continue
		}
		field := owners[best.Index]
		if _, taken := cols[field]; !taken {
			cols[field] = i
		}
	}

	for _, f := range requiredFields {
		if _, ok := cols[f]; !ok {
			return nil, fmt.Errorf("%w: %s (header: %s)", common.ErrMissingColumn, f, strings.Join(header, ", "))
		}
	}
	return cols, nil
}

// sniffDelimiter picks the most frequent of ; , and tab in the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(4096)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, bestCount := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
