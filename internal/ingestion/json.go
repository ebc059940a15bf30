package ingestion

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/storerecon/reconciler/internal/cleaner"
)

// jsonReader streams objects out of either a top-level array or the
// "records" array of a top-level object, so large exports are never fully
// decoded in memory.
type jsonReader struct {
	dec   *json.Decoder
	p     *Profile
	index int
}

func newJSONReader(r io.Reader, p *Profile) (*jsonReader, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	switch tok {
	case json.Delim('['):
	case json.Delim('{'):
		if err := seekRecords(dec); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read json: expected an array or object, got %v", tok)
	}
	return &jsonReader{dec: dec, p: p}, nil
}

// seekRecords advances past keys of the enclosing object until the opening
// bracket of its "records" array.
func seekRecords(dec *json.Decoder) error {
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read json: %w", err)
		}
		if key == "records" {
			tok, err := dec.Token()
			if err != nil {
				return fmt.Errorf("read json: %w", err)
			}
			if tok != json.Delim('[') {
				return fmt.Errorf("read json: records is not an array")
			}
			return nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("read json: %w", err)
		}
	}
	return fmt.Errorf("read json: object has no records array")
}

func (j *jsonReader) Next() (cleaner.Row, error) {
	if !j.dec.More() {
		return nil, io.EOF
	}
	j.index++
	var obj map[string]any
	if err := j.dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("record %d: %w", j.index, err)
	}
	row := make(cleaner.Row, len(obj))
	for k, v := range obj {
		if c := j.p.Column(NormalizeHeader(k)); c != "" {
			row[c] = v
		}
	}
	return row, nil
}

func (j *jsonReader) Close() error { return nil }
