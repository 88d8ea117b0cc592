package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/browser2excel/internal/merge"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/Veraticus/browser2excel/internal/rules"
	"github.com/Veraticus/browser2excel/internal/workbook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const amazonLabel = "Umsatz: ; AMAZON EU ; Verwendungszweck: ; Bestellung 123 ; Betrag: ; 1.234,56 EUR"

func defaultEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine(rules.Default())
	require.NoError(t, err)
	return engine
}

func record(id int, date, label, content string) model.RawRecord {
	r := model.RawRecord{ID: id, Content: content}
	if date != "" {
		r.Date = model.StringPtr(date)
	}
	if label != "" {
		r.Label = model.StringPtr(label)
	}
	return r
}

type recordingInserter struct {
	err      error
	inserted []model.Transaction
}

func (r *recordingInserter) Insert(_ context.Context, txn model.Transaction) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.inserted = append(r.inserted, txn)
	return len(r.inserted) - 1, nil
}

func TestFromElements(t *testing.T) {
	records := []model.RawRecord{
		record(0, "2024-01-05-08.30.00.000000", amazonLabel, `<div><svg viewBox="0 0 1 1"><path/></svg></div>`),
		record(1, "", amazonLabel, "<div/>"),
		record(2, "not a date", amazonLabel, "<div/>"),
		record(3, "2024-01-20-10.00.00.000000", "Umsatz: ; Stadtwerke ; Verwendungszweck: ; Abschlag ; Betrag: ; 80,00 EUR", "<div/>"),
	}

	txns := FromElements(records, defaultEngine(t))
	require.Len(t, txns, 2)

	assert.Equal(t, 3, txns[0].ID, "newest first")
	assert.Equal(t, "20/01/2024", txns[0].Date)
	assert.Nil(t, txns[0].SVG)

	amazon := txns[1]
	assert.Equal(t, 0, amazon.ID)
	assert.Equal(t, "05/01/2024", amazon.Date)
	assert.Equal(t, "Shopping", amazon.Kind)
	assert.Equal(t, "Amazon: Bestellung 123", amazon.Description)
	assert.True(t, decimal.RequireFromString("-1234.56").Equal(amazon.Amount))
	require.NotNil(t, amazon.SVG)
	assert.Equal(t, `<svg viewBox="0 0 1 1"><path/></svg>`, *amazon.SVG)
}

func TestFromStatement(t *testing.T) {
	statement := model.Statement{Bookings: []model.Booking{
		{BuchungsDatum: model.NewDate(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)), Zweck: "AMAZON MKTP", BetragInEuro: decimal.RequireFromString("-19.99")},
		{BuchungsDatum: model.NewDate(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)), Zweck: "Kaffee", BetragInEuro: decimal.RequireFromString("-3.20")},
	}}

	txns := FromStatement(statement, defaultEngine(t))
	require.Len(t, txns, 2)
	assert.Equal(t, 0, txns[0].ID)
	assert.Equal(t, "15/03/2024", txns[0].Date)
	assert.Equal(t, "Shopping", txns[0].Kind)
	assert.Equal(t, "Amazon: AMAZON MKTP", txns[0].Description)
	assert.Equal(t, 1, txns[1].ID)
	assert.True(t, decimal.RequireFromString("-3.20").Equal(txns[1].Amount))
}

func TestSession_AddOnce(t *testing.T) {
	inserter := &recordingInserter{}
	session := NewSession(defaultEngine(t), inserter, nil)
	rows := session.LoadElements("https://bank.example", []model.RawRecord{
		record(7, "2024-01-05-08.30.00.000000", amazonLabel, "<div/>"),
	})
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Added)
	assert.Equal(t, "https://bank.example", session.Source())

	batch := rows[0].Batch
	_, err := session.Add(context.Background(), batch, 7)
	require.NoError(t, err)
	assert.True(t, session.Rows()[0].Added)

	_, err = session.Add(context.Background(), batch, 7)
	assert.ErrorIs(t, err, ErrAlreadyAdded)

	_, err = session.Add(context.Background(), batch, 99)
	assert.ErrorIs(t, err, ErrUnknownRow)
	assert.Len(t, inserter.inserted, 1)

	rows = session.LoadElements("https://bank.example", []model.RawRecord{
		record(7, "2024-01-06-08.30.00.000000", amazonLabel, "<div/>"),
	})
	assert.False(t, rows[0].Added, "a new batch resets the added flags")
}

func TestSession_FailedAddCanBeRetried(t *testing.T) {
	inserter := &recordingInserter{err: errors.New("boom")}
	session := NewSession(defaultEngine(t), inserter, nil)
	rows := session.LoadElements("", []model.RawRecord{record(1, "2024-01-05-08.30.00.000000", amazonLabel, "")})

	_, err := session.Add(context.Background(), rows[0].Batch, 1)
	require.Error(t, err)
	assert.False(t, session.Rows()[0].Added)

	inserter.err = nil
	_, err = session.Add(context.Background(), rows[0].Batch, 1)
	assert.NoError(t, err)
}

func TestSession_RowsOfReplacedBatchAreRefused(t *testing.T) {
	inserter := &recordingInserter{}
	session := NewSession(defaultEngine(t), inserter, nil)
	first := session.LoadElements("https://bank.example/januar", []model.RawRecord{
		record(0, "2024-01-05-08.30.00.000000", amazonLabel, ""),
	})
	require.Len(t, first, 1)
	assert.Equal(t, "Amazon: Bestellung 123", first[0].Description)

	second := session.LoadElements("https://bank.example/februar", []model.RawRecord{
		record(0, "2024-02-01-08.30.00.000000", "Umsatz: ; Stadtwerke ; Verwendungszweck: ; Abschlag ; Betrag: ; 80,00 EUR", ""),
	})
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].Batch, second[0].Batch)

	_, err := session.Add(context.Background(), first[0].Batch, first[0].ID)
	require.ErrorIs(t, err, ErrStaleBatch)
	assert.Empty(t, inserter.inserted, "a stale id must not resolve against the new batch")
	assert.False(t, session.Rows()[0].Added)

	_, err = session.Add(context.Background(), second[0].Batch, second[0].ID)
	require.NoError(t, err)
	require.Len(t, inserter.inserted, 1)
	assert.Equal(t, "01/02/2024", inserter.inserted[0].Date)
}

func TestSession_AddAll(t *testing.T) {
	inserter := &recordingInserter{}
	session := NewSession(defaultEngine(t), inserter, nil)
	rows := session.LoadElements("", []model.RawRecord{
		record(0, "2024-01-05-08.30.00.000000", amazonLabel, ""),
		record(1, "2024-01-06-08.30.00.000000", amazonLabel, ""),
		record(2, "2024-01-07-08.30.00.000000", amazonLabel, ""),
	})
	_, err := session.Add(context.Background(), rows[0].Batch, 1)
	require.NoError(t, err)

	var calls []int
	count, err := session.AddAll(context.Background(), func(done, _ int) { calls = append(calls, done) })
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []int{1, 3}, calls)
	assert.Len(t, inserter.inserted, 3)
}

type mockInserter struct {
	mock.Mock
}

func (m *mockInserter) Insert(ctx context.Context, txn model.Transaction) (int, error) {
	args := m.Called(ctx, txn)
	return args.Int(0), args.Error(1)
}

func withID(id int) any {
	return mock.MatchedBy(func(txn model.Transaction) bool { return txn.ID == id })
}

func TestSession_AddAllStopsAtFirstFailure(t *testing.T) {
	inserter := &mockInserter{}
	inserter.On("Insert", mock.Anything, withID(2)).Return(0, nil).Once()
	inserter.On("Insert", mock.Anything, withID(1)).Return(0, errors.New("sheet is locked")).Once()

	session := NewSession(defaultEngine(t), inserter, nil)
	session.LoadElements("", []model.RawRecord{
		record(0, "2024-01-05-08.30.00.000000", amazonLabel, ""),
		record(1, "2024-01-06-08.30.00.000000", amazonLabel, ""),
		record(2, "2024-01-07-08.30.00.000000", amazonLabel, ""),
	})

	count, err := session.AddAll(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet is locked")
	assert.Equal(t, 1, count)
	inserter.AssertExpectations(t)
	inserter.AssertNumberOfCalls(t, "Insert", 2)

	added := map[int]bool{}
	for _, row := range session.Rows() {
		added[row.ID] = row.Added
	}
	assert.Equal(t, map[int]bool{0: false, 1: false, 2: true}, added)
}

func TestEndToEnd_OneValidRecordOneRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	layout := merge.DefaultLayout()
	table, err := workbook.Open(path, "Transactions", layout.Headers())
	require.NoError(t, err)
	defer table.Close()

	session := NewSession(defaultEngine(t), merge.NewEngine(table), nil)
	rows := session.LoadElements("https://bank.example", []model.RawRecord{
		record(0, "2024-01-10-09.15.00.000000", amazonLabel, "<div/>"),
		record(1, "", "Umsatz: ; Somebody ; Verwendungszweck: ; x ; Betrag: ; 1,00 EUR", "<div/>"),
	})
	require.Len(t, rows, 1)

	added, err := session.AddAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	ctx := context.Background()
	n, err := table.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	descriptions, err := table.Column(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amazon: Bestellung 123"}, descriptions)

	kinds, err := table.Column(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Shopping"}, kinds)

	dates, err := table.Column(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"45301"}, dates)
}
