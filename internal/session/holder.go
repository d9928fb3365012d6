package session

import (
	"context"
	"sync"
)

// Holder keeps at most one live session. Replacing closes the previous
// session before the next one is opened.
type Holder struct {
	mu  sync.Mutex
	cur *Session
}

// Replace closes the current session, if any, and installs the one
// returned by start. On error the holder is left empty.
func (h *Holder) Replace(ctx context.Context, start func(context.Context) (*Session, error)) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cur != nil {
		h.cur.Close()
		h.cur = nil
	}
	s, err := start(ctx)
	if err != nil {
		return nil, err
	}
	h.cur = s
	return s, nil
}

// Current returns the live session or nil.
func (h *Holder) Current() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

// Close closes the live session and empties the holder.
func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return nil
	}
	err := h.cur.Close()
	h.cur = nil
	return err
}
