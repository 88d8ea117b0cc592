package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/merge"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSheet serves the subset of the Sheets REST API the table uses, backed by one grid.
type fakeSheet struct {
	grid    [][]any
	inserts []int64
	formats []*sheets.RepeatCellRequest
	fail    []int
	calls   int
	mu      sync.Mutex
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.fail) > 0 {
		code := f.fail[0]
		f.fail = f.fail[1:]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": code, "message": http.StatusText(code)}})
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req sheets.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, op := range req.Requests {
			if op.RepeatCell != nil {
				f.formats = append(f.formats, op.RepeatCell)
				continue
			}
			at := op.InsertDimension.Range.StartIndex
			f.inserts = append(f.inserts, at)
			f.grid = append(f.grid, nil)
			copy(f.grid[at+1:], f.grid[at:])
			f.grid[at] = []any{}
		}
		writeJSON(w, map[string]any{})
	case strings.Contains(path, "/values/"):
		_, rng, _ := strings.Cut(path, "/values/")
		_, ref, _ := strings.Cut(rng, "!")
		if r.Method == http.MethodPut {
			var vr sheets.ValueRange
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			row, _ := strconv.Atoi(strings.TrimPrefix(ref, "A"))
			for len(f.grid) < row {
				f.grid = append(f.grid, []any{})
			}
			f.grid[row-1] = vr.Values[0]
			writeJSON(w, map[string]any{})
			return
		}
		writeJSON(w, map[string]any{"values": f.read(ref)})
	case r.Method == http.MethodGet:
		writeJSON(w, map[string]any{
			"sheets": []any{map[string]any{"properties": map[string]any{"sheetId": 7, "title": "Transactions"}}},
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSheet) read(ref string) [][]any {
	switch ref {
	case "":
		return f.grid
	case "1:1":
		if len(f.grid) == 0 {
			return nil
		}
		return f.grid[:1]
	case "A2:A":
		var col []any
		for _, row := range f.grid[1:] {
			if len(row) == 0 {
				col = append(col, "")
				continue
			}
			col = append(col, row[0])
		}
		return [][]any{col}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestTable(t *testing.T, fake *fakeSheet) *Table {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	service, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SpreadsheetID = "sid"
	cfg.RetryDelay = time.Millisecond
	return NewTableWithService(service, cfg, nil)
}

func TestTable_ReadsHeaderAndColumn(t *testing.T) {
	fake := &fakeSheet{grid: [][]any{
		{"Date", "Description", "Amount"},
		{45301.0, "a", -1.5},
		{45311.0, "b", -2.0},
	}}
	table := newTestTable(t, fake)
	ctx := context.Background()

	header, err := table.Header(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Description", "Amount"}, header)

	rows, err := table.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	dates, err := table.Column(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"45301", "45311"}, dates)
}

func TestTable_MergeInsertsInDateOrder(t *testing.T) {
	fake := &fakeSheet{grid: [][]any{{"Date", "Description", "Kind", "Frequency", "Amount"}}}
	table := newTestTable(t, fake)
	engine := merge.NewEngine(table)

	for i, date := range []string{"10/01/2024", "05/01/2024", "20/01/2024"} {
		txn := model.NewTransaction(i, model.Classification{Description: "row", Kind: "Other", Frequency: "once"},
			date, decimal.RequireFromString("-12.50"), nil)
		_, err := engine.Insert(context.Background(), txn)
		require.NoError(t, err)
	}

	require.Len(t, fake.grid, 4)
	var dates []float64
	for _, row := range fake.grid[1:] {
		dates = append(dates, row[0].(float64))
	}
	assert.Equal(t, []float64{45296, 45301, 45311}, dates)
	assert.Equal(t, []int64{1, 1, 3}, fake.inserts, "grid rows offset by the header")
	assert.InDelta(t, -12.5, fake.grid[1][4].(float64), 0.0001)
}

func TestTable_InsertFormatsDateCell(t *testing.T) {
	fake := &fakeSheet{grid: [][]any{{"Description", "Date", "Amount"}}}
	table := newTestTable(t, fake)

	require.NoError(t, table.InsertRow(context.Background(), 0, []any{"a", 45301, -1.5}))
	require.NoError(t, table.InsertRow(context.Background(), 1, []any{"b", 45311, -2.0}))

	require.Len(t, fake.formats, 2)
	for i, format := range fake.formats {
		row := int64(i + 1)
		assert.Equal(t, int64(7), format.Range.SheetId)
		assert.Equal(t, row, format.Range.StartRowIndex)
		assert.Equal(t, row+1, format.Range.EndRowIndex)
		assert.Equal(t, int64(1), format.Range.StartColumnIndex)
		assert.Equal(t, int64(2), format.Range.EndColumnIndex)
		assert.Equal(t, "DATE", format.Cell.UserEnteredFormat.NumberFormat.Type)
		assert.Equal(t, DateFormat, format.Cell.UserEnteredFormat.NumberFormat.Pattern)
		assert.Equal(t, "userEnteredFormat.numberFormat", format.Fields)
	}
}

func TestTable_InsertWithoutDateColumn(t *testing.T) {
	fake := &fakeSheet{grid: [][]any{{"Description", "Amount"}}}
	table := newTestTable(t, fake)

	require.NoError(t, table.InsertRow(context.Background(), 0, []any{"a", -1.5}))
	assert.Empty(t, fake.formats)
	assert.Equal(t, []int64{1}, fake.inserts)
}

func TestTable_RetriesServerErrorsOnly(t *testing.T) {
	t.Run("server error is retried", func(t *testing.T) {
		fake := &fakeSheet{grid: [][]any{{"Date"}}, fail: []int{http.StatusServiceUnavailable}}
		table := newTestTable(t, fake)

		header, err := table.Header(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"Date"}, header)
		assert.Equal(t, 2, fake.calls)
	})

	t.Run("client error is returned at once", func(t *testing.T) {
		fake := &fakeSheet{grid: [][]any{{"Date"}}, fail: []int{http.StatusNotFound, http.StatusNotFound}}
		table := newTestTable(t, fake)

		_, err := table.Header(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, fake.calls)
		assert.NotErrorIs(t, err, common.ErrMaxRetries)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		rateLimit bool
	}{
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true, true},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, true, false},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, false, false},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.Equal(t, tt.retryable, common.IsRetryable(err))
			assert.Equal(t, tt.rateLimit, errors.Is(err, common.ErrRateLimit))
		})
	}
	assert.NoError(t, classify(nil))
}

func TestTable_UnknownSheet(t *testing.T) {
	fake := &fakeSheet{grid: [][]any{{"Date"}}}
	table := newTestTable(t, fake)
	table.sheetName = "Missing"

	err := table.InsertRow(context.Background(), 0, []any{1})
	assert.Error(t, err)
}

func TestA1Quoting(t *testing.T) {
	table := &Table{sheetName: "Bob's sheet"}
	assert.Equal(t, "'Bob''s sheet'!A1", table.a1("A1"))
	assert.Equal(t, "'Bob''s sheet'", table.a1(""))
}
