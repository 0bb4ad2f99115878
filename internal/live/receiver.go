package live

import (
	"context"
	"sync/atomic"

	"github.com/1ureka/camlink/internal/media"
	"github.com/1ureka/camlink/internal/protocol"
	"github.com/1ureka/camlink/internal/util"
)

const recvBufferSize = 1024 // incoming chunk channel capacity

// Receiver is the viewer's end of the live stream. OnMessage is called on
// engine goroutines and only queues; Run reassembles units and writes them
// to the sink.
type Receiver struct {
	inbox chan []byte
	asm   *Assembler
	sink  media.Sink
	units atomic.Int64
	log   util.Scope
}

// NewReceiver creates a receiver writing to sink, which may be nil when
// units are only counted.
func NewReceiver(sink media.Sink) *Receiver {
	return &Receiver{
		inbox: make(chan []byte, recvBufferSize),
		asm:   NewAssembler(DefaultWindow),
		sink:  sink,
		log:   util.Scope("live"),
	}
}

// OnMessage matches session.Options.OnMessage. Text messages are logged.
func (r *Receiver) OnMessage(label string, data []byte, isText bool) {
	if isText {
		r.log.Info("message on %q: %s", label, data)
		return
	}
	util.Stats.AddRecv(len(data))
	select {
	case r.inbox <- data:
	default:
		util.Stats.AddChunkDropped()
	}
}

// Units returns how many complete units have been delivered.
func (r *Receiver) Units() int64 { return r.units.Load() }

// Run processes queued chunks until ctx ends, then closes the sink.
func (r *Receiver) Run(ctx context.Context) error {
	defer func() {
		if r.sink != nil {
			if err := r.sink.Close(); err != nil {
				r.log.Warning("failed to close sink: %v", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-r.inbox:
			pkt, err := protocol.Decode(data)
			if err != nil {
				r.log.Warning("dropping chunk: %v", err)
				continue
			}
			if pkt.Type == protocol.TypeEnd {
				r.log.Info("remote stream ended after unit %d", pkt.Seq)
			}
			for _, u := range r.asm.Feed(pkt) {
				r.deliver(u)
			}
		}
	}
}

func (r *Receiver) deliver(u *Unit) {
	r.units.Add(1)
	if r.sink == nil {
		return
	}
	p := media.NewPacket(u.Data)
	p.PTS = u.PTS
	p.DTS = u.DTS
	p.Keyframe = u.Keyframe
	if err := r.sink.WriteUnit(p); err != nil {
		util.Stats.AddSinkError()
		r.log.Warning("failed to write unit %d: %v", u.Seq, err)
	}
	p.Release()
}
