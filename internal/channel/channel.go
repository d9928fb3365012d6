// Package channel implements the per-session push connection that carries
// observations from the relay server to one consumer.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/procurewatch/investigator/internal/event"
	"github.com/rs/zerolog"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
)

var (
	// ErrChannel wraps failures to establish the transport.
	ErrChannel = errors.New("event channel")
	// ErrHandlerSet is returned when a second consumer is registered.
	ErrHandlerSet = errors.New("event channel: handler already registered")
	// ErrClosed is returned when registering on a closed channel.
	ErrClosed = errors.New("event channel: closed")
)

// Handler consumes decoded events. It is called from a single goroutine,
// one event at a time.
type Handler func(event.Event)

// Severity of a Diagnostic.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Diagnostic reports a transport or decode problem. Diagnostics never
// carry task state.
type Diagnostic struct {
	Time     time.Time
	Severity Severity
	Message  string
	Err      error
}

// DiagnosticHandler receives diagnostics from the read goroutine.
type DiagnosticHandler func(Diagnostic)

// Conn is the consumer-facing contract of a channel.
type Conn interface {
	OnMessage(Handler) error
	OnDiagnostic(DiagnosticHandler)
	Close() error
	Done() <-chan struct{}
}

// Options tune Open.
type Options struct {
	Token  string
	Logger zerolog.Logger
}

// Channel is one websocket connection bound to one session id.
type Channel struct {
	sessionID string
	conn      *websocket.Conn
	log       zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serialises control frame writes
	handler Handler
	diag    DiagnosticHandler

	closed     atomic.Bool
	closeOnce  sync.Once
	cancelPing context.CancelFunc
	done       chan struct{}
}

var _ Conn = (*Channel)(nil)

// Address derives the channel URL for sessionID from the server base URL,
// e.g. http://host:8000 -> ws://host:8000/api/ws/{sessionID}.
func Address(base, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrChannel)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: parse base url: %v", ErrChannel, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrChannel, u.Scheme)
	}
	raw := strings.TrimSuffix(u.EscapedPath(), "/") + "/api/ws/" + url.PathEscape(sessionID)
	p, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChannel, err)
	}
	u.Path, u.RawPath = p, raw
	return u.String(), nil
}

// Open dials addr and returns a channel for sessionID. Delivery starts
// once a handler is registered with OnMessage.
func Open(ctx context.Context, addr, sessionID string, opts Options) (*Channel, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, addr, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %v (status %d)", ErrChannel, addr, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrChannel, addr, err)
	}

	c := &Channel{
		sessionID: sessionID,
		conn:      conn,
		log:       opts.Logger.With().Str("component", "channel").Str("session", sessionID).Logger(),
		done:      make(chan struct{}),
	}
	c.log.Debug().Str("addr", addr).Msg("channel open")
	return c, nil
}

// OnMessage registers the single consumer and starts delivery.
func (c *Channel) OnMessage(h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if c.handler != nil {
		return ErrHandlerSet
	}
	c.handler = h

	pingCtx, cancel := context.WithCancel(context.Background())
	c.cancelPing = cancel
	go c.pingLoop(pingCtx)
	go c.readLoop()
	return nil
}

// OnDiagnostic registers a receiver for transport and decode problems.
// Register it before OnMessage to see every diagnostic.
func (c *Channel) OnDiagnostic(h DiagnosticHandler) {
	c.mu.Lock()
	c.diag = h
	c.mu.Unlock()
}

// Done is closed when the read goroutine exits, whether because the peer
// went away or because Close was called.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// SessionID returns the session this channel is bound to.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Close shuts the connection down. It never blocks on the consumer and is
// a no-op after the first call. Frames read after Close are discarded.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		cancel := c.cancelPing
		started := c.handler != nil
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			c.log.Debug().Err(err).Msg("close frame not sent")
		}
		c.writeMu.Unlock()

		if err := c.conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close")
		}
		if !started {
			close(c.done)
		}
		c.log.Debug().Msg("channel closed")
	})
	return nil
}

func (c *Channel) readLoop() {
	defer close(c.done)

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := c.conn.ReadMessage()
		if c.closed.Load() {
			return
		}
		if err != nil {
			sev := SeverityError
			msg := "connection lost"
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sev = SeverityWarn
				msg = "server closed the channel"
			}
			c.log.Warn().Err(err).Msg(msg)
			c.report(Diagnostic{Time: time.Now(), Severity: sev, Message: msg, Err: err})
			return
		}

		ev, err := event.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping frame")
			c.report(Diagnostic{Time: time.Now(), Severity: SeverityWarn, Message: "dropped invalid frame", Err: err})
			continue
		}

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		h(ev)
	}
}

func (c *Channel) report(d Diagnostic) {
	c.mu.Lock()
	h := c.diag
	c.mu.Unlock()
	if h != nil {
		h(d)
	}
}

// pingLoop keeps the read deadline alive through pongs until ctx ends.
func (c *Channel) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
