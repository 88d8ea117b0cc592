package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 20
	sendBuffer     = 64
)

// PeerInfo describes a connected party.
type PeerInfo struct {
	ConnectedAt time.Time `json:"connectedAt"`
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
}

type frame struct {
	from *peer
	data []byte
}

// Hub fans every valid frame out to all connected peers except its sender.
type Hub struct {
	logger     *slog.Logger
	peers      map[*peer]struct{}
	register   chan *peer
	unregister chan *peer
	broadcast  chan frame
	kick       chan struct{}
	done       chan struct{}
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins lets browsers on the given origins connect. Without it, cross-origin
// browser connections are refused and non-browser clients are unaffected.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *Hub) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// NewHub returns a hub. Call Run before serving connections.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:     logger,
		peers:      make(map[*peer]struct{}),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		broadcast:  make(chan frame, sendBuffer),
		kick:       make(chan struct{}),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the peer set until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return
		case p := <-h.register:
			h.mu.Lock()
			h.peers[p] = struct{}{}
			count := len(h.peers)
			h.mu.Unlock()
			h.logger.Info("relay client connected", "peer", p.id, "remote", p.remote, "peers", count)
		case p := <-h.unregister:
			h.remove(p)
		case <-h.kick:
			h.dropAll()
		case f := <-h.broadcast:
			h.mu.RLock()
			var stalled []*peer
			for p := range h.peers {
				if p == f.from {
					continue
				}
				select {
				case p.send <- f.data:
				default:
					stalled = append(stalled, p)
				}
			}
			h.mu.RUnlock()
			for _, p := range stalled {
				h.logger.Warn("relay client too slow, disconnecting", "peer", p.id)
				h.remove(p)
			}
		}
	}
}

// DisconnectAll closes every peer connection. Peers may reconnect afterwards.
func (h *Hub) DisconnectAll() {
	select {
	case h.kick <- struct{}{}:
	case <-h.done:
	}
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	if ok {
		delete(h.peers, p)
		close(p.send)
	}
	count := len(h.peers)
	h.mu.Unlock()
	if ok {
		h.logger.Info("relay client disconnected", "peer", p.id, "peers", count)
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	for p := range h.peers {
		delete(h.peers, p)
		close(p.send)
	}
	h.mu.Unlock()
}

// Peers lists the connected parties.
func (h *Hub) Peers() []PeerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]PeerInfo, 0, len(h.peers))
	for p := range h.peers {
		out = append(out, PeerInfo{ID: p.id, Remote: p.remote, ConnectedAt: p.connectedAt})
	}
	return out
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := &peer{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          uuid.NewString(),
		remote:      r.RemoteAddr,
		connectedAt: time.Now(),
	}
	select {
	case h.register <- p:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go p.writePump()
	go p.readPump()
}

type peer struct {
	connectedAt time.Time
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	remote      string
}

func (p *peer) readPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.done:
		}
		_ = p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.logger.Warn("relay client read failed", "peer", p.id, "error", err)
			}
			return
		}

		env, err := Decode(data)
		if err != nil {
			p.hub.logger.Warn("dropping malformed frame", "peer", p.id, "error", err, common.PayloadAttr(data))
			continue
		}
		p.hub.logger.Info("relaying "+string(env.Type),
			"peer", p.id,
			"correlation_id", env.CorrelationID,
			common.PayloadAttr(env.Payload))
		select {
		case p.hub.broadcast <- frame{from: p, data: data}:
		case <-p.hub.done:
			return
		}
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closing"))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NewMux serves the hub at /hub, a health greeting at /hello and peer status at /status.
// extract, when non-nil, is served at /extract.
func NewMux(hub *Hub, extract http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/hub", hub)
	mux.HandleFunc("/hello", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"text": "Hello World!"})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		peers := hub.Peers()
		writeJSON(w, map[string]any{"peers": len(peers), "clients": peers})
	})
	if extract != nil {
		mux.Handle("/extract", extract)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
