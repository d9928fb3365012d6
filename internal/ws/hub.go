package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/procurewatch/investigator/internal/event"
	"github.com/procurewatch/investigator/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// ErrTooManyConnections is returned by AddClient when the hub is full.
var ErrTooManyConnections = errors.New("too many websocket connections")

type client struct {
	conn    *websocket.Conn
	hub     *Hub
	session string
	send    chan []byte
	once    sync.Once
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.RemoveClient(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.hub.RemoveClient(c)
				return
			}
		}
	}
}

// readPump discards client frames and returns when the peer goes away.
func (c *client) readPump() {
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans observations out to the clients of each session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]bool
	joined   map[string]chan struct{}
	total    int
	maxConns int
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// NewHub creates a hub. maxConns <= 0 means unlimited.
func NewHub(maxConns int, m *metrics.Metrics, log zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*client]bool),
		joined:   make(map[string]chan struct{}),
		maxConns: maxConns,
		log:      log.With().Str("component", "hub").Logger(),
		metrics:  m,
	}
}

// AddClient registers conn as a listener of sessionID and starts its
// write pump.
func (h *Hub) AddClient(sessionID string, conn *websocket.Conn) (*client, error) {
	h.mu.Lock()
	if h.maxConns > 0 && h.total >= h.maxConns {
		h.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := &client{conn: conn, hub: h, session: sessionID, send: make(chan []byte, sendBuffer)}
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[*client]bool)
		h.sessions[sessionID] = set
	}
	set[c] = true
	h.total++
	joined := h.joinedLocked(sessionID)
	select {
	case <-joined:
	default:
		close(joined)
	}
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.log.Debug().Str("session", sessionID).Msg("client joined")
	go c.writePump()
	return c, nil
}

// RemoveClient unregisters c. Safe to call more than once.
func (h *Hub) RemoveClient(c *client) {
	h.mu.Lock()
	set, ok := h.sessions[c.session]
	if !ok || !set[c] {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.sessions, c.session)
		delete(h.joined, c.session)
	}
	h.total--
	c.close()
	h.mu.Unlock()

	h.metrics.ClientDisconnected()
	h.log.Debug().Str("session", c.session).Msg("client left")
}

func (h *Hub) joinedLocked(sessionID string) chan struct{} {
	ch, ok := h.joined[sessionID]
	if !ok {
		ch = make(chan struct{})
		h.joined[sessionID] = ch
	}
	return ch
}

// WaitForClient blocks until sessionID has a client.
func (h *Hub) WaitForClient(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	ch := h.joinedLocked(sessionID)
	h.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget drops the join marker of a finished session.
func (h *Hub) Forget(sessionID string) {
	h.mu.Lock()
	delete(h.joined, sessionID)
	h.mu.Unlock()
}

// Publish encodes ev once and queues it to every client of sessionID.
// With no clients the observation is dropped. Clients whose queue is full
// are disconnected.
func (h *Hub) Publish(sessionID string, ev event.Event) error {
	data, err := event.Encode(ev)
	if err != nil {
		return err
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// queue mid-send.
	h.mu.RLock()
	set := h.sessions[sessionID]
	listeners := len(set)
	delivered := 0
	var slow []*client
	for c := range set {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if listeners == 0 {
		h.metrics.ObservationDropped()
		h.log.Warn().Str("session", sessionID).Stringer("type", ev.Kind).Msg("no clients for session, dropping observation")
		return nil
	}
	for _, c := range slow {
		h.log.Warn().Str("session", sessionID).Msg("ws client too slow, disconnecting")
		h.metrics.ObservationDropped()
		h.RemoveClient(c)
	}
	if delivered > 0 {
		h.metrics.ObservationPublished(ev.Kind.String())
	}
	return nil
}

// ClientCount is the number of connected clients across sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// SessionCount is the number of sessions with at least one client.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Clients is the number of clients of one session.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.mu.RLock()
	var all []*client
	for _, set := range h.sessions {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.RemoveClient(c)
	}
}
