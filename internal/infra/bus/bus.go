// Package bus is the in-process channel that completion notifications are
// published on.
package bus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

const defaultBuffer = 64

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("notification bus closed")

var _ ports.NotificationPublisher = (*Bus)(nil)

// Bus fans notifications out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the notification.
type Bus struct {
	logger *zap.Logger
	buffer int

	mu     sync.Mutex
	nextID int
	subs   map[int]chan execution.Notification
	closed bool
}

// New constructs a Bus. buffer is the per-subscriber channel capacity; zero
// selects a default.
func New(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger,
		buffer: buffer,
		subs:   make(map[int]chan execution.Notification),
	}
}

// Subscribe registers a new subscriber. The returned function removes it and
// closes its channel. The channel is also closed when the bus closes.
func (b *Bus) Subscribe() (<-chan execution.Notification, func()) {
	ch := make(chan execution.Notification, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers notification to every subscriber with room for it.
func (b *Bus) Publish(ctx context.Context, notification execution.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	for id, ch := range b.subs {
		select {
		case ch <- notification:
		default:
			b.logger.Warn("notification dropped for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("execution_id", notification.ExecutionID),
			)
		}
	}
	return nil
}

// Close closes every subscriber channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return nil
}
