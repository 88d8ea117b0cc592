// Package merge inserts classified transactions into date-ordered tables.
package merge

import (
	"context"
	"strings"

	"github.com/Veraticus/browser2excel/internal/model"
)

// Table is an ordered, header-keyed sequence of data rows backed by a spreadsheet.
// Rows are addressed by 0-based data row position; the header is not a data row.
type Table interface {
	// Header returns the column names in column order.
	Header(ctx context.Context) ([]string, error)
	// Len returns the number of data rows.
	Len(ctx context.Context) (int, error)
	// Column returns the raw stored values of one column for every data row, in row order.
	Column(ctx context.Context, index int) ([]string, error)
	// InsertRow inserts values before data row position. position == Len appends.
	InsertRow(ctx context.Context, position int, values []any) error
}

// Layout names the header of each transaction field.
type Layout struct {
	Date        string
	Description string
	Kind        string
	Frequency   string
	Amount      string
	ID          string
}

// DefaultLayout is the header layout used for new tables.
func DefaultLayout() Layout {
	return Layout{
		Date:        "Date",
		Description: "Description",
		Kind:        "Kind",
		Frequency:   "Frequency",
		Amount:      "Amount",
	}
}

// Headers lists the configured column names in their default order, skipping unset ones.
func (l Layout) Headers() []string {
	var out []string
	for _, h := range []string{l.Date, l.Description, l.Kind, l.Frequency, l.Amount, l.ID} {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// row maps a transaction onto the table header. Columns the layout does not know stay empty.
func (l Layout) row(header []string, serial int, txn model.Transaction) []any {
	values := make([]any, len(header))
	for i, name := range header {
		switch {
		case sameColumn(name, l.Date):
			values[i] = serial
		case sameColumn(name, l.Description):
			values[i] = txn.Description
		case sameColumn(name, l.Kind):
			values[i] = txn.Kind
		case sameColumn(name, l.Frequency):
			values[i] = txn.Frequency
		case sameColumn(name, l.Amount):
			values[i] = txn.Amount.InexactFloat64()
		case sameColumn(name, l.ID):
			values[i] = txn.ID
		}
	}
	return values
}

func sameColumn(header, want string) bool {
	return want != "" && strings.EqualFold(strings.TrimSpace(header), strings.TrimSpace(want))
}

func columnIndex(header []string, want string) int {
	for i, name := range header {
		if sameColumn(name, want) {
			return i
		}
	}
	return -1
}
