package ingestion

import (
	"fmt"
	"io"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"

	"github.com/storerecon/reconciler/internal/cleaner"
	"github.com/storerecon/reconciler/internal/domain"
)

// xlsxReader walks the first sheet of a workbook with excelize's row
// iterator. Cells are read raw so amounts keep full precision; date cells,
// which are serial numbers when raw, are converted back to dates.
type xlsxReader struct {
	f     *excelize.File
	rows  *excelize.Rows
	cols  []string
	dates map[int]bool
	row   int
}

func newXLSXReader(r io.Reader, p *Profile) (*xlsxReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sheet %q: %w", sheets[0], err)
	}

	x := &xlsxReader{f: f, rows: rows, dates: map[int]bool{}}
	if !rows.Next() {
		x.Close()
		return nil, fmt.Errorf("read header: sheet %q is empty", sheets[0])
	}
	header, err := rows.Columns()
	if err != nil {
		x.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	x.row = 1
	x.cols = columns(header, p)
	for i, c := range x.cols {
		if c != "" && c == p.Rules.DateField {
			x.dates[i] = true
		}
	}
	return x, nil
}

func (x *xlsxReader) Next() (cleaner.Row, error) {
	for x.rows.Next() {
		x.row++
		cells, err := x.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", x.row, err)
		}
		for i := range cells {
			if x.dates[i] {
				cells[i] = serialDate(cells[i])
			}
		}
		if row, ok := rowFrom(x.cols, cells); ok {
			return row, nil
		}
	}
	if err := x.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

// serialDate turns an Excel date serial into YYYY-MM-DD and leaves anything
// else for the cleaner to parse.
func serialDate(v string) string {
	serial, err := cast.ToFloat64E(v)
	if err != nil || serial <= 0 || serial > maxExcelSerial {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return t.Format(domain.DateLayout)
}

func (x *xlsxReader) Close() error {
	if x.rows != nil {
		x.rows.Close()
	}
	return x.f.Close()
}
