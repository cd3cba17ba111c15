// Package importer reads bank exports into raw records for the ingest
// pipeline. It does no parsing of amounts, dates or descriptors.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// Format is an import file format.
type Format string

// Supported formats.
const (
	FormatCSV Format = "csv"
	FormatOFX Format = "ofx"
)

// Reader turns an export into raw records. source names the input in
// diagnostics.
type Reader interface {
	Read(ctx context.Context, r io.Reader, source string) ([]model.RawRecord, error)
}

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".ofx", ".qfx":
		return FormatOFX, nil
	default:
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatOFX, "qfx":
		return FormatOFX, nil
	default:
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, s)
	}
}

// NewReader returns the reader for format.
func NewReader(format Format, opts CSVOptions) (Reader, error) {
	switch format {
	case FormatCSV:
		return NewCSVReader(opts), nil
	case FormatOFX:
		return NewOFXReader(), nil
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, format)
	}
}

// ReadFile opens path and reads it with the reader for format. An empty
// format is detected from the extension.
func ReadFile(ctx context.Context, path string, format Format, opts CSVOptions) ([]model.RawRecord, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	reader, err := NewReader(format, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) //nolint:gosec // path is provided by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	records, err := reader.Read(ctx, f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w in %s", common.ErrNoRecords, path)
	}
	return records, nil
}
