package event

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Pop once the bus is closed and drained.
var ErrClosed = errors.New("event bus closed")

// Bus is an unbounded multi-producer / single-consumer FIFO.
//
// Push never blocks, so it is safe to call from engine callback goroutines.
// Pop blocks until an event is available, the bus is closed or ctx is done.
type Bus struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	notify chan struct{} // capacity 1: "queue may be non-empty"
	done   chan struct{}
	once   sync.Once
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends ev. It returns false if the bus is already closed.
func (b *Bus) Push(ev Event) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the oldest event. Events pushed before Close are
// still delivered; after that Pop returns ErrClosed.
func (b *Bus) Pop(ctx context.Context) (Event, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue[0] = Event{}
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, nil
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return Event{}, ErrClosed
		}

		select {
		case <-b.notify:
		case <-b.done:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close stops accepting events and wakes a blocked Pop. Safe to call multiple times.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
	})
}

// Len reports the number of queued events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
