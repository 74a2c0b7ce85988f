package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/obserrors"
)

type fakeSession struct {
	id            int
	reconnectErr  error
	reconnectCalls int
	closed        bool
}

func (f *fakeSession) Reconnect(ctx context.Context) error {
	f.reconnectCalls++
	return f.reconnectErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func fakeFactory(failSlots map[int]bool) Factory {
	return func(ctx context.Context, idx int) (Session, error) {
		if failSlots[idx] {
			return nil, errors.New("connection refused")
		}
		return &fakeSession{id: idx}, nil
	}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p, err := New(context.Background(), 2, time.Second, fakeFactory(nil), zap.NewNop())
	require.NoError(t, err)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h.Session)

	h.Release()
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	p, err := New(context.Background(), 1, 50*time.Millisecond, fakeFactory(nil), zap.NewNop())
	require.NoError(t, err)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, obserrors.ErrNoConnectionAvailable)
}

func TestDegradedModeWhenSomeSlotsFail(t *testing.T) {
	p, err := New(context.Background(), 3, time.Second, fakeFactory(map[int]bool{1: true}), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, p.Degraded())
}

func TestPoolInitFailedWhenAllSlotsFail(t *testing.T) {
	_, err := New(context.Background(), 2, time.Second, fakeFactory(map[int]bool{0: true, 1: true}), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, obserrors.ErrPoolInitFailed)
}

func TestShutdownRejectsNewAcquires(t *testing.T) {
	p, err := New(context.Background(), 1, time.Second, fakeFactory(nil), zap.NewNop())
	require.NoError(t, err)

	p.Shutdown()

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, obserrors.ErrShuttingDown)
}

func TestReconnectDelegatesToSession(t *testing.T) {
	p, err := New(context.Background(), 1, time.Second, fakeFactory(nil), zap.NewNop())
	require.NoError(t, err)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, p.Reconnect(context.Background(), h))
	assert.Equal(t, 1, h.Session.(*fakeSession).reconnectCalls)
}
