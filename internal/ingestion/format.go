package ingestion

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/storerecon/reconciler/internal/cleaner"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat accepts a format name or a file name with a known extension.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(name); ext != "" {
		name = ext[1:]
	}
	switch name {
	case "csv", "txt", "psv":
		return FormatCSV, nil
	case "xlsx", "xlsm":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// rowReader yields rows keyed by normalised header until io.EOF.
type rowReader interface {
	Next() (cleaner.Row, error)
	Close() error
}

func newRowReader(format Format, r io.Reader, p *Profile) (rowReader, error) {
	switch format {
	case FormatCSV:
		return newCSVReader(r, p)
	case FormatXLSX:
		return newXLSXReader(r, p)
	case FormatJSON:
		return newJSONReader(r, p)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// NormalizeHeader lower-cases a column title and joins its words with
// underscores: " Order ID " becomes "order_id".
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// columns maps raw header cells to destination column names.
func columns(header []string, p *Profile) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = p.Column(NormalizeHeader(h))
	}
	return out
}

// rowFrom zips a header with cell values. Missing trailing cells are blank and
// cells under an empty header are dropped.
func rowFrom(cols []string, cells []string) (cleaner.Row, bool) {
	row := make(cleaner.Row, len(cols))
	blank := true
	for i, c := range cols {
		if c == "" {
			continue
		}
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		if strings.TrimSpace(v) != "" {
			blank = false
		}
		row[c] = v
	}
	return row, !blank
}
