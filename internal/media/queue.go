package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/1ureka/camlink/internal/util"
)

// QueuePolicy decides what Push does when the queue is full.
type QueuePolicy int

const (
	// Block waits for the consumer to make room.
	Block QueuePolicy = iota
	// DropOldest evicts and releases the head packet.
	DropOldest
)

func (p QueuePolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParseQueuePolicy maps a config value to a policy.
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "drop-oldest":
		return DropOldest, nil
	default:
		return Block, fmt.Errorf("unknown queue policy %q", s)
	}
}

// PacketQueue is a bounded FIFO between the capture and transcode
// goroutines. The packets it holds are owned by the queue.
type PacketQueue struct {
	ch      chan *Packet
	policy  QueuePolicy
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewPacketQueue creates a queue holding at most size packets.
func NewPacketQueue(size int, policy QueuePolicy) *PacketQueue {
	if size <= 0 {
		size = 1
	}
	return &PacketQueue{
		ch:     make(chan *Packet, size),
		policy: policy,
		done:   make(chan struct{}),
	}
}

// Push hands p to the queue. On error the caller still owns p.
func (q *PacketQueue) Push(ctx context.Context, p *Packet) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	if q.policy == Block {
		select {
		case q.ch <- p:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrQueueClosed
		}
	}

	for {
		select {
		case q.ch <- p:
			return nil
		default:
		}
		select {
		case old := <-q.ch:
			old.Release()
			q.dropped.Add(1)
			util.Stats.AddPacketsDropped()
		default:
		}
	}
}

// Pop blocks until a packet is available, ctx is done or the queue is closed
// and drained.
func (q *PacketQueue) Pop(ctx context.Context) (*Packet, error) {
	select {
	case p := <-q.ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		select {
		case p := <-q.ch:
			return p, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Close stops further pushes. Packets already queued can still be popped.
func (q *PacketQueue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Drain releases every queued packet.
func (q *PacketQueue) Drain() {
	for {
		select {
		case p := <-q.ch:
			p.Release()
		default:
			return
		}
	}
}

func (q *PacketQueue) Len() int       { return len(q.ch) }
func (q *PacketQueue) Dropped() int64 { return q.dropped.Load() }
