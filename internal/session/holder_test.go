package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolderReplaceClosesPrevious(t *testing.T) {
	var h Holder
	first, second := newFakeConn(), newFakeConn()

	s1, err := h.Replace(context.Background(), func(ctx context.Context) (*Session, error) {
		return Start(ctx, openerFor(first), "s1", zerolog.Nop())
	})
	require.NoError(t, err)
	assert.Same(t, s1, h.Current())

	s2, err := h.Replace(context.Background(), func(ctx context.Context) (*Session, error) {
		assert.Equal(t, 1, first.closeCount(), "previous session must be closed before the next opens")
		return Start(ctx, openerFor(second), "s2", zerolog.Nop())
	})
	require.NoError(t, err)
	assert.Same(t, s2, h.Current())
	assert.Equal(t, 0, second.closeCount())

	require.NoError(t, h.Close())
	assert.Nil(t, h.Current())
	assert.Equal(t, 1, second.closeCount())
	assert.NoError(t, h.Close())
}

func TestHolderReplaceFailureLeavesEmpty(t *testing.T) {
	var h Holder
	conn := newFakeConn()
	_, err := h.Replace(context.Background(), func(ctx context.Context) (*Session, error) {
		return Start(ctx, openerFor(conn), "s1", zerolog.Nop())
	})
	require.NoError(t, err)

	boom := errors.New("dial failed")
	_, err = h.Replace(context.Background(), func(context.Context) (*Session, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, h.Current())
	assert.Equal(t, 1, conn.closeCount())
}
