package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryTable stores rows as their formatted cell values.
type memoryTable struct {
	insertErr   error
	header      []string
	rows        [][]string
	columnReads int
}

func newMemoryTable(header ...string) *memoryTable {
	return &memoryTable{header: header}
}

func (m *memoryTable) Header(context.Context) ([]string, error) { return m.header, nil }

func (m *memoryTable) Len(context.Context) (int, error) { return len(m.rows), nil }

func (m *memoryTable) Column(_ context.Context, index int) ([]string, error) {
	m.columnReads++
	out := make([]string, len(m.rows))
	for i, row := range m.rows {
		if index < len(row) {
			out[i] = row[index]
		}
	}
	return out, nil
}

func (m *memoryTable) InsertRow(_ context.Context, position int, values []any) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	row := make([]string, len(values))
	for i, v := range values {
		if v != nil {
			row[i] = fmt.Sprint(v)
		}
	}
	m.rows = append(m.rows, nil)
	copy(m.rows[position+1:], m.rows[position:])
	m.rows[position] = row
	return nil
}

func (m *memoryTable) dates(t *testing.T) []string {
	t.Helper()
	col := columnIndex(m.header, "Date")
	out := make([]string, len(m.rows))
	for i, row := range m.rows {
		serial, ok := cellSerial(row[col])
		require.True(t, ok, "row %d has no date", i)
		out[i] = DisplayDate(int(serial))
	}
	return out
}

func txn(id int, date string) model.Transaction {
	return model.NewTransaction(id, model.Classification{Description: "d", Kind: "k", Frequency: "once"},
		date, decimal.NewFromInt(int64(-id)), nil)
}

func TestSerial_RoundTrip(t *testing.T) {
	d := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	serial := Serial(d)
	assert.Equal(t, 45366, serial)

	again, err := ParseDisplayDate(DisplayDate(serial))
	require.NoError(t, err)
	assert.Equal(t, serial, again)

	assert.Equal(t, 0, Serial(time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, Serial(time.Date(1899, time.December, 31, 23, 59, 0, 0, time.UTC)))
}

func TestSerialString(t *testing.T) {
	assert.Equal(t, "45366", SerialString("15/03/2024"))
	assert.Equal(t, "not a date", SerialString("not a date"), "failure returns the input")

	_, err := ParseDisplayDate("2024-03-15")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCellSerial(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{raw: "45366", want: 45366, ok: true},
		{raw: "45366.75", want: 45366, ok: true},
		{raw: "15/03/2024", want: 45366, ok: true},
		{raw: " ", ok: false},
		{raw: "Total", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := cellSerial(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0)
			}
		})
	}
}

func TestEngine_InsertKeepsDateOrder(t *testing.T) {
	table := newMemoryTable(DefaultLayout().Headers()...)
	e := NewEngine(table)
	ctx := context.Background()

	for i, date := range []string{"10/01/2024", "05/01/2024", "20/01/2024"} {
		_, err := e.Insert(ctx, txn(i, date))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"05/01/2024", "10/01/2024", "20/01/2024"}, table.dates(t))
	assert.Equal(t, 1, table.columnReads, "index is reused while the row count matches")
}

func TestEngine_SameDayKeepsInsertionOrder(t *testing.T) {
	table := newMemoryTable(DefaultLayout().Headers()...)
	e := NewEngine(table)
	ctx := context.Background()

	_, err := e.InsertAll(ctx, []model.Transaction{txn(1, "10/01/2024"), txn(2, "10/01/2024"), txn(3, "01/01/2024")})
	require.NoError(t, err)

	amountCol := columnIndex(table.header, "Amount")
	var amounts []string
	for _, row := range table.rows {
		amounts = append(amounts, row[amountCol])
	}
	assert.Equal(t, []string{"-3", "-1", "-2"}, amounts)
}

func TestEngine_UnorderedHistoryUsesLinearScan(t *testing.T) {
	table := newMemoryTable("Date", "Description")
	table.rows = [][]string{
		{"45301", "a"}, // 10/01/2024
		{"Subtotal", ""},
		{"45296", "b"}, // 05/01/2024
		{"45311", "c"}, // 20/01/2024
	}
	e := NewEngine(table)

	pos, err := e.Insert(context.Background(), txn(9, "07/01/2024"))
	require.NoError(t, err)
	assert.Equal(t, 0, pos, "first strictly later row is the first row")

	pos, err = e.Insert(context.Background(), txn(10, "25/01/2024"))
	require.NoError(t, err)
	assert.Equal(t, 5, pos, "appends when no row is later")
}

func TestEngine_ExternalEditRebuildsIndex(t *testing.T) {
	table := newMemoryTable("Date")
	e := NewEngine(table)
	ctx := context.Background()

	_, err := e.Insert(ctx, txn(1, "10/01/2024"))
	require.NoError(t, err)

	table.rows = append(table.rows, []string{"45311"})
	pos, err := e.Insert(ctx, txn(2, "15/01/2024"))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 2, table.columnReads)
}

func TestEngine_InvalidateRereadsSameSizeTable(t *testing.T) {
	table := newMemoryTable("Date")
	e := NewEngine(table)
	ctx := context.Background()

	_, err := e.Insert(ctx, txn(1, "10/01/2024"))
	require.NoError(t, err)

	table.rows[0][0] = "45320"
	e.Invalidate()
	pos, err := e.Insert(ctx, txn(2, "15/01/2024"))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.Equal(t, 2, table.columnReads)
}

func TestEngine_SharedTableSeesSameSizeEdit(t *testing.T) {
	table := newMemoryTable("Date")
	e := NewEngine(table, WithSharedTable())
	ctx := context.Background()

	_, err := e.Insert(ctx, txn(1, "10/01/2024"))
	require.NoError(t, err)

	table.rows[0][0] = "45320"
	pos, err := e.Insert(ctx, txn(2, "15/01/2024"))
	require.NoError(t, err)
	assert.Equal(t, 0, pos, "lands before the edited 29/01/2024 row")
	assert.Equal(t, 2, table.columnReads)
	assert.Equal(t, []string{"15/01/2024", "29/01/2024"}, table.dates(t))
}

func TestEngine_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing date column", func(t *testing.T) {
		e := NewEngine(newMemoryTable("When", "Amount"))
		_, err := e.Insert(ctx, txn(1, "10/01/2024"))
		assert.ErrorIs(t, err, ErrColumnNotFound)
	})

	t.Run("custom layout finds renamed column", func(t *testing.T) {
		layout := DefaultLayout()
		layout.Date = "when"
		table := newMemoryTable("When", "Amount")
		_, err := NewEngine(table, WithLayout(layout)).Insert(ctx, txn(1, "10/01/2024"))
		require.NoError(t, err)
		assert.Equal(t, "45301", table.rows[0][0])
	})

	t.Run("invalid transaction date", func(t *testing.T) {
		e := NewEngine(newMemoryTable("Date"))
		_, err := e.Insert(ctx, txn(1, "2024-01-10"))
		assert.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("insert failure drops cache", func(t *testing.T) {
		table := newMemoryTable("Date")
		table.insertErr = errors.New("read only")
		e := NewEngine(table)
		_, err := e.Insert(ctx, txn(1, "10/01/2024"))
		require.Error(t, err)
		assert.Nil(t, e.index)
	})
}
