package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/browser2excel/internal/pipeline"
	"github.com/Veraticus/browser2excel/internal/relay"
)

// ErrNoRelay is returned for page actions when the review has no relay connection.
var ErrNoRelay = errors.New("no relay connection")

// Backend is what the review screen drives.
type Backend interface {
	Refresh(ctx context.Context) (source string, rows []pipeline.Row, err error)
	Add(ctx context.Context, batch, id int) (position int, err error)
	Highlight(id int) error
	Status() relay.Status
}

// RelayBackend loads batches from the page agent over the relay and merges rows through a
// session.
type RelayBackend struct {
	Client  *relay.Client
	Session *pipeline.Session
	// Persist, when set, runs after every successful add, e.g. to save a workbook.
	Persist func() error
	Timeout time.Duration
}

// Refresh requests the agent's current page and replaces the session batch with it.
func (b *RelayBackend) Refresh(ctx context.Context) (string, []pipeline.Row, error) {
	if b.Client == nil {
		return b.Session.Source(), b.Session.Rows(), nil
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := b.Client.Request(ctx, relay.ElementRequest{Reason: "review"})
	if err != nil {
		return "", nil, fmt.Errorf("requesting page elements: %w", err)
	}
	rows := b.Session.LoadElements(resp.URL, resp.Elements)
	return resp.URL, rows, nil
}

// Add merges one row of batch and persists the table.
func (b *RelayBackend) Add(ctx context.Context, batch, id int) (int, error) {
	position, err := b.Session.Add(ctx, batch, id)
	if err != nil {
		return 0, err
	}
	if b.Persist != nil {
		if err := b.Persist(); err != nil {
			return position, fmt.Errorf("row %d added but not saved: %w", id, err)
		}
	}
	return position, nil
}

// Highlight asks the page agent to highlight the card behind row id.
func (b *RelayBackend) Highlight(id int) error {
	if b.Client == nil {
		return ErrNoRelay
	}
	return b.Client.Highlight(id)
}

// Status reports the relay connection.
func (b *RelayBackend) Status() relay.Status {
	if b.Client == nil {
		return relay.Status{ConnectionState: relay.StateDisconnected}
	}
	return b.Client.Status()
}
