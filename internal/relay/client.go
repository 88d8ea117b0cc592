package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client errors.
var (
	ErrNotConnected       = errors.New("relay not connected")
	ErrRequestTimeout     = errors.New("relay request timed out")
	ErrReconnectExhausted = errors.New("relay reconnect attempts exhausted")
	ErrClosed             = errors.New("relay client closed")
)

// State is the client's connection state.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Status is a read-only snapshot of the client's connection.
type Status struct {
	ConnectionState   State  `json:"connectionState"`
	LastError         string `json:"lastError,omitempty"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
	IsConnected       bool   `json:"isConnected"`
}

// MessageHandler receives every frame that is not a response to one of this client's requests.
// It runs on the client's read loop; reconnection waits until it returns.
type MessageHandler func(ctx context.Context, env Envelope)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBackoff sets the reconnect schedule.
func WithBackoff(b common.Backoff) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// WithHandler sets the handler for incoming requests and highlight commands.
func WithHandler(h MessageHandler) ClientOption {
	return func(c *Client) { c.handler = h }
}

// WithSleep replaces the wait between reconnect attempts.
func WithSleep(sleep SleepFunc) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// WithDialer sets the WebSocket dialer, e.g. for custom TLS settings.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// WithStateListener is called after every state change.
func WithStateListener(fn func(Status)) ClientOption {
	return func(c *Client) { c.listener = fn }
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// Client is one party on the relay. It owns a single connection and reconnects with capped
// exponential backoff when it drops.
type Client struct {
	lastErr  error
	dialer   *websocket.Dialer
	conn     *websocket.Conn
	logger   *slog.Logger
	handler  MessageHandler
	sleep    SleepFunc
	listener func(Status)
	pending  map[string]chan ElementResponse
	done     chan struct{}
	cancel   context.CancelFunc
	url      string
	state    State
	order    []string
	backoff  common.Backoff
	attempts int
	mu       sync.Mutex
	writeMu  sync.Mutex
	closed   bool
}

// NewClient returns a disconnected client for the hub at url (ws:// or wss://).
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:     url,
		state:   StateDisconnected,
		backoff: common.DefaultBackoff(),
		dialer:  websocket.DefaultDialer,
		sleep:   sleepContext,
		logger:  slog.Default(),
		pending: make(map[string]chan ElementResponse),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start blocks until the first connection succeeds, retrying per the backoff schedule, and
// then serves the connection in the background until ctx is done, Close is called or
// reconnection is exhausted.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.attempts = 0
	c.mu.Unlock()
	c.setState(StateConnecting, nil)

	runCtx, cancel := context.WithCancel(ctx)

	if err := c.dial(runCtx); err != nil {
		c.setState(StateReconnecting, err)
		if !c.reconnect(runCtx) {
			cancel()
			return fmt.Errorf("%w: %v", ErrReconnectExhausted, c.lastError())
		}
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, done)
	return nil
}

// Close disconnects and stops reconnecting. The client cannot be restarted.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, cancel, done := c.conn, c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	c.setState(StateDisconnected, nil)
	return nil
}

// Status returns the current connection snapshot.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Client) statusLocked() Status {
	s := Status{
		IsConnected:       c.state == StateConnected,
		ConnectionState:   c.state,
		ReconnectAttempts: c.attempts,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Request asks the page agent for its current elements and waits for the matching response.
// The wait ends with ErrRequestTimeout when ctx expires; nothing is retried.
func (c *Client) Request(ctx context.Context, req ElementRequest) (ElementResponse, error) {
	id := uuid.NewString()
	ch := make(chan ElementResponse, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.order = append(c.order, id)
	c.mu.Unlock()
	defer c.forget(id)

	if err := c.send(TypeRequestElementData, id, req); err != nil {
		return ElementResponse{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ElementResponse{}, ErrRequestTimeout
		}
		return ElementResponse{}, ctx.Err()
	}
}

// Respond answers the request with correlationID. Responses are dropped, not queued, while
// the client is disconnected.
func (c *Client) Respond(correlationID string, resp ElementResponse) error {
	if resp.Elements == nil {
		resp.Elements = []model.RawRecord{}
	}
	err := c.send(TypeResponseElementData, correlationID, resp)
	if errors.Is(err, ErrNotConnected) {
		c.logger.Warn("dropping element response while disconnected",
			"correlation_id", correlationID,
			"elements", len(resp.Elements))
	}
	return err
}

// Highlight asks the page agent to highlight the card with cardID.
func (c *Client) Highlight(cardID int) error {
	return c.send(TypeHighlight, "", HighlightCommand{CardID: cardID})
}

func (c *Client) send(kind MessageType, correlationID string, payload any) error {
	data, err := Encode(kind, correlationID, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	c.logger.Debug("sent "+string(kind), "correlation_id", correlationID, common.PayloadAttr(data))
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	for i, pending := range c.order {
		if pending == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Client) dial(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.setState(StateConnected, nil)
	c.logger.Info("connected to relay", "url", c.url)
	return nil
}

// reconnect retries the connection per the backoff schedule. It returns false once attempts
// are exhausted or ctx is done, leaving the client disconnected.
func (c *Client) reconnect(ctx context.Context) bool {
	for {
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if c.backoff.Exhausted(attempt) {
			c.logger.Error("giving up on relay", "attempts", attempt-1, "error", c.lastError())
			c.setState(StateDisconnected, c.lastError())
			return false
		}

		delay := c.backoff.Delay(attempt)
		c.setState(StateReconnecting, c.lastError())
		c.logger.Warn("reconnecting to relay", "attempt", attempt, "max_attempts", c.backoff.MaxAttempts, "delay", delay)

		if err := c.sleep(ctx, delay); err != nil {
			c.setState(StateDisconnected, err)
			return false
		}
		err := c.dial(ctx)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			c.setState(StateDisconnected, err)
			return false
		}
		c.setLastError(err)
	}
}

// run reads frames and dispatches them. Reconnection happens here too, so it never overlaps
// a dispatch.
func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			c.mu.Lock()
			c.conn = nil
			closed := c.closed
			c.mu.Unlock()
			if closed || ctx.Err() != nil {
				c.setState(StateDisconnected, nil)
				return
			}

			c.logger.Warn("relay connection lost", "error", err)
			c.setState(StateReconnecting, err)
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		env, err := Decode(data)
		if err != nil {
			c.logger.Warn("ignoring malformed frame", "error", err, common.PayloadAttr(data))
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) dispatch(ctx context.Context, env Envelope) {
	if env.Type != TypeResponseElementData {
		if c.handler != nil {
			c.handler(ctx, env)
		}
		return
	}

	var resp ElementResponse
	if err := env.Unmarshal(&resp); err != nil {
		c.logger.Warn("ignoring response", "error", err)
		return
	}

	c.mu.Lock()
	id := env.CorrelationID
	if id == "" && len(c.order) > 0 {
		id = c.order[0]
	}
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		for i, pending := range c.order {
			if pending == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("ignoring response without a waiting request", "correlation_id", env.CorrelationID)
		return
	}
	ch <- resp
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	if err != nil {
		c.lastErr = err
	} else if state == StateConnected {
		c.lastErr = nil
	}
	status := c.statusLocked()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(status)
	}
}

func (c *Client) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Client) lastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
