package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/storerecon/reconciler/internal/domain"
)

// SummarySheet is always the first sheet of a workbook.
const SummarySheet = "Summary"

const (
	defaultMaxColWidth = 60
	defaultSampleRows  = 100
)

// Mode selects how the Summary sheet is filled.
type Mode string

const (
	// ModeStatic writes values computed while streaming the data sheets.
	ModeStatic Mode = "static"
	// ModeFormula writes COUNTIF/SUMIFS formulas over the data sheets. They
	// reference sheet names and column letters literally, so the workbook
	// breaks if a data sheet is renamed or its columns are reordered.
	ModeFormula Mode = "formula"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStatic:
		return ModeStatic, nil
	case ModeFormula:
		return ModeFormula, nil
	}
	return "", fmt.Errorf("unknown summary mode %q", s)
}

type Options struct {
	Mode        Mode
	MaxColWidth float64
	// SampleRows is how many leading rows of a sheet are measured to size
	// its columns.
	SampleRows int
	// Aggregators always get a breakdown row, even with no orders.
	Aggregators []string
}

// Emitter renders result sets into an XLSX workbook.
type Emitter struct {
	opts Options
	log  logrus.FieldLogger
}

func NewEmitter(opts Options, log logrus.FieldLogger) *Emitter {
	if opts.Mode == "" {
		opts.Mode = ModeStatic
	}
	if opts.MaxColWidth <= 0 {
		opts.MaxColWidth = defaultMaxColWidth
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = defaultSampleRows
	}
	return &Emitter{opts: opts, log: log.WithField("component", "report")}
}

type styles struct {
	bold  int
	money int
}

// Render writes the Summary sheet followed by one sheet per result set. Data
// rows are streamed, so memory stays flat regardless of set size. progress,
// when set, is called after each data sheet with the number of sheets done.
func (e *Emitter) Render(ctx context.Context, src Source, scope domain.Scope, w io.Writer, progress func(done, total int)) (*Summary, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}

	var st styles
	var err error
	if st.bold, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return nil, fmt.Errorf("bold style: %w", err)
	}
	if st.money, err = f.NewStyle(&excelize.Style{NumFmt: 2}); err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}

	acc := newAccumulator(scope, e.opts.Aggregators)
	variants := domain.Variants()
	for i, v := range variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := e.writeSheet(ctx, f, src, v, st, acc)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", v.SheetName(), err)
		}
		e.log.WithFields(logrus.Fields{"sheet": v.SheetName(), "rows": rows}).Debug("sheet written")
		if progress != nil {
			progress(i+1, len(variants))
		}
	}

	summary := acc.summary()
	if err := e.writeSummary(f, summary, st); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return summary, nil
}

func (e *Emitter) writeSheet(ctx context.Context, f *excelize.File, src Source, v domain.Variant, st styles, acc *accumulator) (int, error) {
	if _, err := f.NewSheet(v.SheetName()); err != nil {
		return 0, err
	}
	sw, err := f.NewStreamWriter(v.SheetName())
	if err != nil {
		return 0, err
	}

	cols := v.Columns()
	header := make([]any, len(cols))
	widths := make([]int, len(cols))
	for i, c := range cols {
		header[i] = excelize.Cell{StyleID: st.bold, Value: c.Header}
		widths[i] = utf8.RuneCountInString(c.Header)
	}

	// Column widths must be set before the first row, so the leading rows
	// are held back until they have been measured.
	var sample [][]any
	written := 0
	started := false
	start := func() error {
		for i, wd := range widths {
			width := float64(wd + 2)
			if width > e.opts.MaxColWidth {
				width = e.opts.MaxColWidth
			}
			if err := sw.SetColWidth(i+1, i+1, width); err != nil {
				return err
			}
		}
		if err := sw.SetRow("A1", header); err != nil {
			return err
		}
		for _, row := range sample {
			if err := e.setRow(sw, written, row); err != nil {
				return err
			}
			written++
		}
		sample = nil
		started = true
		return nil
	}

	err = src.Each(ctx, v, func(r *domain.MatchRecord) error {
		acc.add(r)
		row := make([]any, len(cols))
		for i, c := range cols {
			value := c.Get(r)
			row[i] = cellValue(value, st)
			if !started {
				if n := displayWidth(value); n > widths[i] {
					widths[i] = n
				}
			}
		}
		if started {
			if err := e.setRow(sw, written, row); err != nil {
				return err
			}
			written++
			return nil
		}
		sample = append(sample, row)
		if len(sample) >= e.opts.SampleRows {
			return start()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !started {
		if err := start(); err != nil {
			return 0, err
		}
	}
	return written, sw.Flush()
}

// setRow writes the n-th data row; row 1 is the header.
func (e *Emitter) setRow(sw *excelize.StreamWriter, n int, row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n+2)
	if err != nil {
		return err
	}
	return sw.SetRow(cell, row)
}

// cellValue renders money as a number with two decimals; text stays text.
func cellValue(v any, st styles) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return excelize.Cell{StyleID: st.money, Value: x.InexactFloat64()}
	default:
		return x
	}
}

func displayWidth(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(x)
	case decimal.Decimal:
		return len(x.StringFixed(2))
	default:
		return utf8.RuneCountInString(fmt.Sprint(x))
	}
}
