package importer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
)

const danishCSV = "\xEF\xBB\xBFDato;Tekst;Beløb;Saldo\n" +
	"13-01-2025;BS TOPDANMARK - EN DEL AF IF FO;-3.126,38;12.000,00\n" +
	"\n" +
	"14.01.25;\"MC/VISA DK K BYENS BRØDHUS A\";-89,50;11.910,50\n"

func TestCSVReader_Danish(t *testing.T) {
	records, err := NewCSVReader(CSVOptions{}).Read(context.Background(), strings.NewReader(danishCSV), "jan.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "13-01-2025", records[0].RawDate)
	assert.Equal(t, "-3.126,38", records[0].RawAmount)
	assert.Equal(t, "BS TOPDANMARK - EN DEL AF IF FO", records[0].RawDescriptor)
	assert.Equal(t, "jan.csv", records[0].Source)
	assert.Equal(t, "2", records[0].Line)

	assert.Equal(t, "MC/VISA DK K BYENS BRØDHUS A", records[1].RawDescriptor)
	assert.Equal(t, "4", records[1].Line)
}

func TestCSVReader_FuzzyHeaders(t *testing.T) {
	data := "Transaction Date,Descripton,Amount,Category\n" +
		"2025-01-13,NETFLIX.COM,\"-1,234.56\",Fun\n"

	records, err := NewCSVReader(CSVOptions{}).Read(context.Background(), strings.NewReader(data), "x.csv")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "2025-01-13", records[0].RawDate)
	assert.Equal(t, "NETFLIX.COM", records[0].RawDescriptor)
	assert.Equal(t, "-1,234.56", records[0].RawAmount)
}

func TestCSVReader_FirstColumnKeepsField(t *testing.T) {
	data := "Posting Date\tValue\tDate\tText\n2025-01-13\t10\t2025-01-15\tNETTO\n"

	records, err := NewCSVReader(CSVOptions{}).Read(context.Background(), strings.NewReader(data), "x.tsv")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2025-01-13", records[0].RawDate)
}

func TestCSVReader_ExplicitColumns(t *testing.T) {
	data := "when;what;how much\n2025-01-13;NETTO;10,00\n"

	_, err := NewCSVReader(CSVOptions{}).Read(context.Background(), strings.NewReader(data), "x.csv")
	require.ErrorIs(t, err, common.ErrMissingColumn)

	records, err := NewCSVReader(CSVOptions{
		Columns: map[Field]string{FieldDate: "when", FieldDescription: "WHAT", FieldAmount: "how much"},
	}).Read(context.Background(), strings.NewReader(data), "x.csv")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10,00", records[0].RawAmount)
}

func TestCSVReader_ShortRows(t *testing.T) {
	data := "Date,Amount,Description\n2025-01-13,10\n"

	records, err := NewCSVReader(CSVOptions{}).Read(context.Background(), strings.NewReader(data), "x.csv")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].RawDescriptor)
}

func TestCSVReader_Empty(t *testing.T) {
	_, err := NewCSVReader(CSVOptions{}).Read(context.Background(), strings.NewReader(""), "x.csv")
	assert.ErrorIs(t, err, common.ErrNoRecords)
}

func TestCSVReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVReader(CSVOptions{}).Read(ctx, strings.NewReader("Date,Amount,Description\n2025-01-01,1,X\n"), "x.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSniffDelimiter(t *testing.T) {
	tests := map[string]rune{
		"a;b;c\n1,5;2;3\n": ';',
		"a,b,c\n":          ',',
		"a\tb\tc\n":        '\t',
		"single\n":         ',',
	}
	for in, want := range tests {
		assert.Equal(t, want, sniffDelimiter(bufio.NewReader(strings.NewReader(in))), in)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"jan.csv":      FormatCSV,
		"jan.TSV":      FormatCSV,
		"export.txt":   FormatCSV,
		"stmt.ofx":     FormatOFX,
		"card.QFX":     FormatOFX,
		"dir/file.csv": FormatCSV,
	}
	for path, want := range tests {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := DetectFormat("report.pdf")
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("QFX")
	require.NoError(t, err)
	assert.Equal(t, FormatOFX, f)

	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "jan.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(danishCSV), 0o600))
	records, err := ReadFile(context.Background(), csvPath, "", CSVOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "jan.csv", records[0].Source)

	ofxPath := filepath.Join(dir, "card.qfx")
	require.NoError(t, os.WriteFile(ofxPath, []byte(cardOFX), 0o600))
	records, err = ReadFile(context.Background(), ofxPath, "", CSVOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	headerOnly := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("Date,Amount,Description\n"), 0o600))
	_, err = ReadFile(context.Background(), headerOnly, "", CSVOptions{})
	assert.ErrorIs(t, err, common.ErrNoRecords)

	_, err = ReadFile(context.Background(), filepath.Join(dir, "missing.csv"), "", CSVOptions{})
	assert.Error(t, err)
}
