package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/storerecon/reconciler/internal/cleaner"
)

type csvReader struct {
	r    *csv.Reader
	cols []string
	line int
}

// delimiters are tried in order against the header line.
var delimiters = []rune{',', '|', ';', '\t'}

func sniffDelimiter(header []byte) rune {
	best, count := ',', 0
	for _, d := range delimiters {
		if n := bytes.Count(header, []byte(string(d))); n > count {
			best, count = d, n
		}
	}
	return best
}

func newCSVReader(r io.Reader, p *Profile) (*csvReader, error) {
	br := bufio.NewReader(r)
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(peek)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read header: file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &csvReader{r: reader, cols: columns(header, p), line: 1}, nil
}

func (c *csvReader) Next() (cleaner.Row, error) {
	for {
		c.line++
		cells, err := c.r.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", c.line, err)
		}
		if row, ok := rowFrom(c.cols, cells); ok {
			return row, nil
		}
	}
}

func (c *csvReader) Close() error { return nil }
