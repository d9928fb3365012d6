// Package session binds one event channel to one aggregate and exposes
// read-only snapshots to the UI.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/procurewatch/investigator/internal/aggregate"
	"github.com/procurewatch/investigator/internal/channel"
	"github.com/procurewatch/investigator/internal/event"
	"github.com/rs/zerolog"
)

const maxDiagnostics = 200

// ErrNoSessionID is returned by Start when no id was given.
var ErrNoSessionID = errors.New("session: empty session id")

// Opener opens the channel for a session id.
type Opener func(ctx context.Context, sessionID string) (channel.Conn, error)

// Dialer returns an Opener that dials the relay at baseURL.
func Dialer(baseURL, token string, log zerolog.Logger) Opener {
	return func(ctx context.Context, sessionID string) (channel.Conn, error) {
		addr, err := channel.Address(baseURL, sessionID)
		if err != nil {
			return nil, err
		}
		return channel.Open(ctx, addr, sessionID, channel.Options{Token: token, Logger: log})
	}
}

// Session owns one channel and the state it feeds. The channel's read
// goroutine is the only writer; readers take copies.
type Session struct {
	id   string
	conn channel.Conn
	log  zerolog.Logger

	mu    sync.RWMutex
	state *aggregate.State
	diags []channel.Diagnostic

	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	updates   chan struct{}
}

// Start opens the channel for sessionID and registers the session as its
// sole consumer.
func Start(ctx context.Context, open Opener, sessionID string, log zerolog.Logger) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNoSessionID
	}
	conn, err := open(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", sessionID, err)
	}

	s := &Session{
		id:      sessionID,
		conn:    conn,
		log:     log.With().Str("component", "session").Str("session", sessionID).Logger(),
		state:   aggregate.NewState(sessionID),
		updates: make(chan struct{}, 1),
	}
	s.connected.Store(true)

	conn.OnDiagnostic(s.diagnose)
	if err := conn.OnMessage(s.Apply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open session %s: %w", sessionID, err)
	}
	go s.watch()

	s.log.Info().Msg("session started")
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Apply folds one event into the state. Events arriving after Close are
// ignored.
func (s *Session) Apply(ev event.Event) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	changes := s.state.Apply(ev)
	s.mu.Unlock()

	if changes.SessionChange {
		s.log.Info().
			Stringer("from", changes.SessionFrom).
			Stringer("to", changes.SessionTo).
			Msg("session status changed")
	}
	for _, tc := range changes.Tasks {
		if tc.From != tc.To || tc.Created {
			s.log.Debug().
				Str("task", tc.Code).
				Stringer("from", tc.From).
				Stringer("to", tc.To).
				Bool("created", tc.Created).
				Msg("task status")
		}
	}
	s.notify()
}

func (s *Session) diagnose(d channel.Diagnostic) {
	s.mu.Lock()
	s.diags = append(s.diags, d)
	if len(s.diags) > maxDiagnostics {
		s.diags = s.diags[len(s.diags)-maxDiagnostics:]
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) watch() {
	<-s.conn.Done()
	s.connected.Store(false)
	s.notify()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Updates signals after state changes. Signals coalesce; a receiver should
// re-read the snapshot rather than count them.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Connected reports whether the channel is still delivering.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Snapshot returns a detached view of the current state.
func (s *Session) Snapshot() aggregate.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Snapshot()
}

// RecentEvents returns the newest n events for a task.
func (s *Session) RecentEvents(code string, n int) []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RecentEvents(code, n)
}

// Task returns a copy of one task.
func (s *Session) Task(code string) (aggregate.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Task(code)
}

// EventLog returns the full session event log in arrival order.
func (s *Session) EventLog() []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.EventLog()
}

// Diagnostics returns channel diagnostics, oldest first.
func (s *Session) Diagnostics() []channel.Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]channel.Diagnostic(nil), s.diags...)
}

// Close releases the channel. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
		s.log.Info().Msg("session closed")
	})
	return err
}
