package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrBusy is returned by Start when the concurrency limit is reached.
var ErrBusy = errors.New("too many investigations running")

// Investigator runs one investigation to completion.
type Investigator interface {
	Run(ctx context.Context, tenderID, sessionID string) error
}

// Manager runs investigations in the background, bounded by a limit.
type Manager struct {
	inv    Investigator
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	active atomic.Int64
	log    zerolog.Logger
	done   func(sessionID string)
}

// NewManager creates a manager whose runs are cancelled by Shutdown.
// limit <= 0 means unbounded.
func NewManager(inv Investigator, limit int, log zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		inv:    inv,
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "manager").Logger(),
	}
	if limit > 0 {
		m.group.SetLimit(limit)
	}
	return m
}

// OnDone registers a callback run after each investigation ends.
func (m *Manager) OnDone(fn func(sessionID string)) {
	m.done = fn
}

// Start launches an investigation without blocking.
func (m *Manager) Start(tenderID, sessionID string) error {
	if m.ctx.Err() != nil {
		return context.Canceled
	}
	ok := m.group.TryGo(func() error {
		m.active.Add(1)
		defer m.active.Add(-1)
		if m.done != nil {
			defer m.done(sessionID)
		}

		err := m.inv.Run(m.ctx, tenderID, sessionID)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			m.log.Info().Str("session", sessionID).Msg("investigation cancelled")
		default:
			m.log.Warn().Err(err).Str("session", sessionID).Msg("investigation ended with error")
		}
		return nil
	})
	if !ok {
		return ErrBusy
	}
	return nil
}

// Active is the number of running investigations.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Shutdown cancels running investigations and waits for them to return.
func (m *Manager) Shutdown() {
	m.cancel()
	m.group.Wait()
}
