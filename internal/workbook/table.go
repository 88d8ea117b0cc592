// Package workbook backs a merge table with a worksheet in a local .xlsx file.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/Veraticus/browser2excel/internal/merge"
	"github.com/xuri/excelize/v2"
)

var _ merge.Table = (*Table)(nil)

// DateFormat is the number format applied to date cells.
const DateFormat = "dd/mm/yyyy"

// Option configures a Table.
type Option func(*Table)

// WithDateColumn names the header whose cells get the date number format.
func WithDateColumn(name string) Option {
	return func(t *Table) { t.dateColumn = name }
}

// WithLogger sets the table logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) { t.logger = logger }
}

// Table is one worksheet of a workbook. Row 1 is the header.
type Table struct {
	file       *excelize.File
	logger     *slog.Logger
	path       string
	sheet      string
	dateColumn string
	dateStyle  int
	mu         sync.Mutex
}

// Open loads the workbook at path, creating it with header when the file does not exist.
// The sheet is created with header when the workbook lacks it.
func Open(path, sheet string, header []string, opts ...Option) (*Table, error) {
	var (
		f   *excelize.File
		err error
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
			return nil, fmt.Errorf("naming sheet: %w", err)
		}
	} else {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening workbook %s: %w", path, err)
		}
	}

	t := &Table{
		file:       f,
		path:       path,
		sheet:      sheet,
		dateColumn: "Date",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	format := DateFormat
	t.dateStyle, err = f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating date style: %w", err)
	}

	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating sheet %s: %w", sheet, err)
		}
	}

	rows, err := t.rows()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if len(rows) == 0 && len(header) > 0 {
		for i, h := range header {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("writing header: %w", err)
			}
		}
		_ = f.SetColWidth(sheet, "A", "A", 14)
		_ = f.SetColWidth(sheet, "B", "B", 40)
		t.logger.Info("initialized worksheet", "path", path, "sheet", sheet)
	}
	return t, nil
}

// Header returns the first row.
func (t *Table) Header(context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.rows()
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Len returns the number of data rows up to the last non-empty row.
func (t *Table) Len(context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.rows()
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return len(rows) - 1, nil
}

// Column returns one column's raw values for every data row. Date cells read as serial numbers.
func (t *Table) Column(_ context.Context, index int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.rows()
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	out := make([]string, len(rows)-1)
	for i, row := range rows[1:] {
		if index < len(row) {
			out[i] = row[index]
		}
	}
	return out, nil
}

// InsertRow shifts rows down from data row position and writes values into the gap.
func (t *Table) InsertRow(_ context.Context, position int, values []any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.rows()
	if err != nil {
		return err
	}
	sheetRow := position + 2
	if position < len(rows)-1 {
		if err := t.file.InsertRows(t.sheet, sheetRow, 1); err != nil {
			return fmt.Errorf("inserting row %d: %w", sheetRow, err)
		}
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, sheetRow)
		if err != nil {
			return err
		}
		if err := t.file.SetCellValue(t.sheet, cell, v); err != nil {
			return fmt.Errorf("writing %s: %w", cell, err)
		}
		if i < len(header) && strings.EqualFold(strings.TrimSpace(header[i]), t.dateColumn) {
			if err := t.file.SetCellStyle(t.sheet, cell, cell, t.dateStyle); err != nil {
				return fmt.Errorf("formatting %s: %w", cell, err)
			}
		}
	}

	t.logger.Debug("inserted workbook row", "sheet", t.sheet, "row", sheetRow)
	return nil
}

// Save writes the workbook back to its path.
func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.file.SaveAs(t.path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", t.path, err)
	}
	return nil
}

// Close releases the workbook without saving.
func (t *Table) Close() error {
	return t.file.Close()
}

func (t *Table) rows() ([][]string, error) {
	rows, err := t.file.GetRows(t.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", t.sheet, err)
	}
	return rows, nil
}
