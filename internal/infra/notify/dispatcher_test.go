package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"planmarket/internal/domain/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowNotifier blocks each delivery until release is closed.
type slowNotifier struct {
	mu      sync.Mutex
	sent    []event.Notification
	release chan struct{}
	closed  bool
	err     error
}

func (s *slowNotifier) Notify(ctx context.Context, n event.Notification) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *slowNotifier) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *slowNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDispatcher_NotifyDoesNotWaitForDelivery(t *testing.T) {
	next := &slowNotifier{release: make(chan struct{})}
	d := NewDispatcher(next, 8, time.Minute)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Notify(context.Background(), event.Notification{Type: event.NotifyProductSold, RecipientID: "seller"}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, next.count())

	close(next.release)
	require.NoError(t, d.Close())
	assert.Equal(t, 3, next.count())
	assert.True(t, next.closed)
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	next := &slowNotifier{release: make(chan struct{})}
	d := NewDispatcher(next, 1, time.Minute)
	n := event.Notification{Type: event.NotifyOrderPaid, RecipientID: "buyer"}

	// the worker holds one, the queue holds one, the rest are dropped
	require.NoError(t, d.Notify(context.Background(), n))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Notify(context.Background(), n))
	assert.ErrorIs(t, d.Notify(context.Background(), n), ErrQueueFull)

	close(next.release)
	require.NoError(t, d.Close())
	assert.Equal(t, 2, next.count())
}

func TestDispatcher_SendTimeoutAndErrors(t *testing.T) {
	next := &slowNotifier{release: make(chan struct{}), err: errors.New("broker down")}
	d := NewDispatcher(next, 4, 20*time.Millisecond)

	// the first delivery times out, the second fails; neither reaches the caller
	require.NoError(t, d.Notify(context.Background(), event.Notification{Type: event.NotifyOrderPaid}))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(next.release)
	require.NoError(t, d.Notify(context.Background(), event.Notification{Type: event.NotifyOrderCancelled}))

	require.NoError(t, d.Close())
	assert.Equal(t, 1, next.count())
}

func TestDispatcher_ClosedRejects(t *testing.T) {
	d := NewDispatcher(LogNotifier{}, 1, time.Second)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Notify(context.Background(), event.Notification{}), ErrClosed)
}
