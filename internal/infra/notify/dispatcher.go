package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"planmarket/internal/domain/event"
	"planmarket/internal/logging"
)

var (
	ErrQueueFull = errors.New("notify: queue full, notification dropped")
	ErrClosed    = errors.New("notify: dispatcher closed")
)

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, n event.Notification) error
}

type job struct {
	n   event.Notification
	log *slog.Logger
}

// Dispatcher queues notifications for a single background sender so callers
// return as soon as the notification is queued. A full queue drops the
// notification and reports ErrQueueFull.
type Dispatcher struct {
	next    Notifier
	queue   chan job
	timeout time.Duration
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(next Notifier, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		next:    next,
		queue:   make(chan job, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, n event.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job{n: n, log: logging.FromContext(ctx)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		ctx := logging.IntoContext(context.Background(), j.log)
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			d.send(ctx, j)
			cancel()
			continue
		}
		d.send(ctx, j)
	}
}

func (d *Dispatcher) send(ctx context.Context, j job) {
	if err := d.next.Notify(ctx, j.n); err != nil {
		j.log.Warn("notification delivery failed", "type", j.n.Type, "recipient_id", j.n.RecipientID, "err", err)
	}
}

// Close stops accepting notifications, delivers what is queued and then
// closes the wrapped notifier if it has a Close method.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	if c, ok := d.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
