package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/model"
)

// ErrColumnNotFound is returned when the table header lacks the date column.
var ErrColumnNotFound = errors.New("column not found")

// Option configures an Engine.
type Option func(*Engine)

// WithLayout overrides the header layout.
func WithLayout(l Layout) Option {
	return func(e *Engine) { e.layout = l }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSharedTable marks the table as editable by others while the engine runs, so the date
// column is re-read before every insert instead of only when the row count changes.
func WithSharedTable() Option {
	return func(e *Engine) { e.shared = true }
}

// Engine inserts transactions into a Table so its date column stays ordered ascending.
// A transaction is placed before the first row whose date is strictly later, which keeps
// same-day rows in insertion order.
type Engine struct {
	table  Table
	logger *slog.Logger
	index  *dateIndex
	layout Layout
	mu     sync.Mutex
	shared bool
}

// NewEngine returns an engine that writes to table.
func NewEngine(table Table, opts ...Option) *Engine {
	e := &Engine{
		table:  table,
		layout: DefaultLayout(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Insert places txn at its date-ordered position and returns the 0-based data row it landed on.
func (e *Engine) Insert(ctx context.Context, txn model.Transaction) (int, error) {
	if err := common.ValidateContext(ctx); err != nil {
		return 0, err
	}

	serial, err := ParseDisplayDate(txn.Date)
	if err != nil {
		return 0, fmt.Errorf("transaction %d: %w", txn.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	header, err := e.table.Header(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading header: %w", err)
	}
	dateCol := columnIndex(header, e.layout.Date)
	if dateCol < 0 {
		return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, e.layout.Date)
	}

	if err := e.refresh(ctx, dateCol); err != nil {
		return 0, err
	}

	position := e.index.position(float64(serial))
	if err := e.table.InsertRow(ctx, position, e.layout.row(header, serial, txn)); err != nil {
		e.index = nil
		return 0, fmt.Errorf("inserting row at %d: %w", position, err)
	}
	e.index.insert(position, float64(serial))

	e.logger.Debug("merged transaction",
		"id", txn.ID,
		"date", txn.Date,
		"row", position,
		"binary_search", e.index.ordered)
	return position, nil
}

// InsertAll inserts every transaction in order. It stops at the first failure.
func (e *Engine) InsertAll(ctx context.Context, txns []model.Transaction) (int, error) {
	for i, txn := range txns {
		if _, err := e.Insert(ctx, txn); err != nil {
			return i, err
		}
	}
	return len(txns), nil
}

// Invalidate drops the cached date positions so the next insert re-reads the table.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.index = nil
	e.mu.Unlock()
}

// refresh reloads the date index when it is missing, the row count changed underneath it,
// or the table is shared.
func (e *Engine) refresh(ctx context.Context, dateCol int) error {
	if !e.shared {
		rows, err := e.table.Len(ctx)
		if err != nil {
			return fmt.Errorf("counting rows: %w", err)
		}
		if e.index != nil && e.index.column == dateCol && len(e.index.serials) == rows {
			return nil
		}
	}

	values, err := e.table.Column(ctx, dateCol)
	if err != nil {
		return fmt.Errorf("reading date column: %w", err)
	}
	e.index = newDateIndex(dateCol, values)
	e.logger.Debug("rebuilt date index", "rows", len(values), "ordered", e.index.ordered)
	return nil
}

// dateIndex caches the parsed date of every data row.
type dateIndex struct {
	serials []float64
	valid   []bool
	column  int
	ordered bool
}

func newDateIndex(column int, values []string) *dateIndex {
	idx := &dateIndex{
		column:  column,
		serials: make([]float64, len(values)),
		valid:   make([]bool, len(values)),
		ordered: true,
	}
	for i, raw := range values {
		idx.serials[i], idx.valid[i] = cellSerial(raw)
		if !idx.valid[i] || (i > 0 && idx.serials[i] < idx.serials[i-1]) {
			idx.ordered = false
		}
	}
	return idx
}

// position returns the first row whose date is strictly later than serial, or the row count.
// Rows without a readable date never count as later.
func (d *dateIndex) position(serial float64) int {
	if d.ordered {
		return sort.Search(len(d.serials), func(i int) bool { return d.serials[i] > serial })
	}
	for i, s := range d.serials {
		if d.valid[i] && s > serial {
			return i
		}
	}
	return len(d.serials)
}

func (d *dateIndex) insert(at int, serial float64) {
	d.serials = append(d.serials, 0)
	copy(d.serials[at+1:], d.serials[at:])
	d.serials[at] = serial

	d.valid = append(d.valid, false)
	copy(d.valid[at+1:], d.valid[at:])
	d.valid[at] = true
}
