// Package live moves encoded units across the data channel: the camera side
// chunks and sends them, the viewer side reassembles them in order.
package live

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/1ureka/camlink/internal/media"
	"github.com/1ureka/camlink/internal/peer"
	"github.com/1ureka/camlink/internal/protocol"
	"github.com/1ureka/camlink/internal/util"
)

const (
	DefaultChunkSize = 16 * 1024 // payload bytes per chunk
	sendBufferSize   = 256       // outgoing chunk channel capacity
)

// Sender is the live destination of the media fanout. WriteUnit never
// blocks: a unit that does not fit in the outgoing buffer is dropped whole.
// A single writer goroutine (Run) drains the buffer into the attached
// channel, which applies its own buffered-amount backpressure.
type Sender struct {
	chunkSize int
	inbox     chan []byte
	seq       atomic.Uint32

	mu sync.Mutex
	ch peer.DataChannel

	log util.Scope
}

var _ media.Sink = (*Sender)(nil)

// NewSender creates a sender. Nothing is sent until Attach and Run.
func NewSender(chunkSize int) *Sender {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Sender{
		chunkSize: chunkSize,
		inbox:     make(chan []byte, sendBufferSize),
		log:       util.Scope("live"),
	}
}

// Attach makes ch the destination. The sender does not own ch.
func (s *Sender) Attach(ch peer.DataChannel) {
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()
	s.log.Info("streaming on %q", ch.Label())
}

// Detach withdraws the channel carrying label, if it is the current one.
func (s *Sender) Detach(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil && s.ch.Label() == label {
		s.ch = nil
	}
}

func (s *Sender) channel() peer.DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// WriteUnit chunks p and queues the chunks. Units are dropped while no
// channel is attached.
func (s *Sender) WriteUnit(p *media.Packet) error {
	if s.channel() == nil {
		return nil
	}

	chunks, err := protocol.Split(s.seq.Add(1), p.PTS, p.DTS, p.Keyframe, p.Data, s.chunkSize)
	if err != nil {
		return err
	}

	// WriteUnit is only called from the transcode goroutine, so the free
	// space can only grow between this check and the sends below.
	if cap(s.inbox)-len(s.inbox) < len(chunks) {
		for range chunks {
			util.Stats.AddChunkDropped()
		}
		s.log.Debug("outgoing buffer full, dropped unit of %d chunks", len(chunks))
		return nil
	}

	for _, c := range chunks {
		s.inbox <- protocol.Encode(c)
	}
	return nil
}

// Close queues an end-of-stream marker. The sender keeps running until the
// context given to Run ends, so it can serve the next stream.
func (s *Sender) Close() error {
	end := protocol.Encode(&protocol.Packet{Type: protocol.TypeEnd, Seq: s.seq.Load()})
	select {
	case s.inbox <- end:
	default:
		util.Stats.AddChunkDropped()
	}
	return nil
}

// Run is the single-writer loop. It returns when ctx ends.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-s.inbox:
			ch := s.channel()
			if ch == nil {
				util.Stats.AddChunkDropped()
				continue
			}
			if err := ch.Send(ctx, data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				util.Stats.AddChunkDropped()
				s.log.Warning("failed to send chunk on %q: %v", ch.Label(), err)
				continue
			}
			util.Stats.AddSent(len(data))
		}
	}
}
