package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/browser2excel/internal/model"
)

// Session errors.
var (
	ErrAlreadyAdded = errors.New("row already added")
	ErrUnknownRow   = errors.New("no such row in the current batch")
	ErrStaleBatch   = errors.New("row belongs to a replaced batch")
)

// Inserter places one transaction into the backing table and returns its data-row position.
type Inserter interface {
	Insert(ctx context.Context, txn model.Transaction) (int, error)
}

// invalidator is implemented by inserters that cache table state between batches.
type invalidator interface {
	Invalidate()
}

// Row is a display row with its added flag. Batch identifies the load the row came from;
// ids are only meaningful within it.
type Row struct {
	model.Transaction
	Batch int
	Added bool
}

// Session holds the current batch. Loading a new batch discards the previous one, including
// which of its rows were added.
type Session struct {
	classifier Classifier
	inserter   Inserter
	logger     *slog.Logger
	added      map[int]bool
	source     string
	rows       []model.Transaction
	batch      int
	mu         sync.Mutex
}

// NewSession returns an empty session that merges through inserter.
func NewSession(classifier Classifier, inserter Inserter, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		classifier: classifier,
		inserter:   inserter,
		logger:     logger,
		added:      make(map[int]bool),
	}
}

// LoadElements replaces the batch with the rows of a page extraction.
func (s *Session) LoadElements(url string, records []model.RawRecord) []Row {
	return s.load(url, FromElements(records, s.classifier))
}

// LoadStatement replaces the batch with the bookings of a statement.
func (s *Session) LoadStatement(name string, statement model.Statement) []Row {
	return s.load(name, FromStatement(statement, s.classifier))
}

func (s *Session) load(source string, rows []model.Transaction) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch++
	s.source = source
	s.rows = rows
	s.added = make(map[int]bool)
	if inv, ok := s.inserter.(invalidator); ok {
		inv.Invalidate()
	}
	s.logger.Info("loaded batch", "source", source, "batch", s.batch, "rows", len(rows))
	return s.snapshotLocked()
}

// Source names where the current batch came from.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Rows returns the current batch.
func (s *Session) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []Row {
	out := make([]Row, len(s.rows))
	for i, txn := range s.rows {
		out[i] = Row{Transaction: txn, Batch: s.batch, Added: s.added[txn.ID]}
	}
	return out
}

// Add merges the row with id from batch into the table. A row is merged at most once per batch; a
// failed merge leaves it available for another attempt. Rows of a replaced batch are refused.
func (s *Session) Add(ctx context.Context, batch, id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch != s.batch {
		return 0, fmt.Errorf("%w: batch %d, current %d", ErrStaleBatch, batch, s.batch)
	}
	if s.added[id] {
		return 0, fmt.Errorf("%w: %d", ErrAlreadyAdded, id)
	}
	txn, ok := s.findLocked(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownRow, id)
	}

	position, err := s.inserter.Insert(ctx, txn)
	if err != nil {
		return 0, fmt.Errorf("adding row %d: %w", id, err)
	}
	s.added[id] = true
	s.logger.Debug("added row", "id", id, "date", txn.Date, "position", position)
	return position, nil
}

// AddAll merges every row not yet added, in batch order. progress, when non-nil, is called after
// each row. It stops at the first failure and returns how many rows were added.
func (s *Session) AddAll(ctx context.Context, progress func(done, total int)) (int, error) {
	rows := s.Rows()
	count := 0
	for i, row := range rows {
		if row.Added {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if _, err := s.Add(ctx, row.Batch, row.ID); err != nil {
			return count, err
		}
		count++
		if progress != nil {
			progress(i+1, len(rows))
		}
	}
	return count, nil
}

func (s *Session) findLocked(id int) (model.Transaction, bool) {
	for _, txn := range s.rows {
		if txn.ID == id {
			return txn, true
		}
	}
	return model.Transaction{}, false
}
