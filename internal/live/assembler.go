package live

import (
	"container/heap"

	"github.com/1ureka/camlink/internal/protocol"
	"github.com/1ureka/camlink/internal/util"
)

// DefaultWindow is how many complete units may wait behind a missing one.
const DefaultWindow = 8

// Unit is one reassembled encoded unit.
type Unit struct {
	Seq      uint32
	PTS      int64
	DTS      int64
	Keyframe bool
	Data     []byte
}

type partialUnit struct {
	first    *protocol.Packet
	chunks   [][]byte
	received int
}

// Assembler rebuilds units from chunks and releases them in sequence order.
// The sender drops whole units under load, so a missing sequence number is
// skipped once no partial unit can fill it or the window overflows.
// It is goroutine-local and needs no locking.
type Assembler struct {
	window   int
	expected uint32
	started  bool
	partial  map[uint32]*partialUnit
	ready    unitHeap
}

// NewAssembler creates an assembler; window <= 0 selects DefaultWindow.
func NewAssembler(window int) *Assembler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Assembler{window: window, partial: make(map[uint32]*partialUnit)}
}

// Feed processes one packet and returns every unit that can now be delivered.
func (a *Assembler) Feed(pkt *protocol.Packet) []*Unit {
	if pkt.Type == protocol.TypeEnd {
		return a.flush()
	}

	if !a.started {
		a.expected = pkt.Seq
		a.started = true
	}
	if pkt.Seq < a.expected {
		util.LogDebug("[live] chunk of old unit %d (expected %d), ignoring", pkt.Seq, a.expected)
		return nil
	}

	p, ok := a.partial[pkt.Seq]
	if !ok {
		p = &partialUnit{first: pkt, chunks: make([][]byte, pkt.Count)}
		a.partial[pkt.Seq] = p
	}
	if int(pkt.Index) >= len(p.chunks) || p.chunks[pkt.Index] != nil {
		return nil
	}
	p.chunks[pkt.Index] = pkt.Payload
	if p.chunks[pkt.Index] == nil {
		p.chunks[pkt.Index] = []byte{}
	}
	p.received++

	if p.received == len(p.chunks) {
		delete(a.partial, pkt.Seq)
		heap.Push(&a.ready, p.unit())
	}

	return a.drain()
}

// drain pops consecutive units, skipping gaps that cannot be filled.
func (a *Assembler) drain() []*Unit {
	var out []*Unit
	for a.ready.Len() > 0 {
		top := a.ready[0].Seq
		if top != a.expected {
			if a.fillable(top) && a.ready.Len() <= a.window {
				break
			}
			util.LogDebug("[live] skipping units %d..%d", a.expected, top-1)
			a.skipTo(top)
		}
		out = append(out, heap.Pop(&a.ready).(*Unit))
		a.expected = top + 1
	}
	return out
}

// fillable reports whether a partial unit could still close the gap below top.
func (a *Assembler) fillable(top uint32) bool {
	for seq := range a.partial {
		if seq >= a.expected && seq < top {
			return true
		}
	}
	return false
}

func (a *Assembler) skipTo(seq uint32) {
	for s := range a.partial {
		if s < seq {
			delete(a.partial, s)
		}
	}
	a.expected = seq
}

// flush returns every complete unit in order and resets for the next stream.
func (a *Assembler) flush() []*Unit {
	var out []*Unit
	for a.ready.Len() > 0 {
		out = append(out, heap.Pop(&a.ready).(*Unit))
	}
	clear(a.partial)
	a.started = false
	return out
}

// Pending returns the number of units not yet delivered.
func (a *Assembler) Pending() int { return a.ready.Len() + len(a.partial) }

func (p *partialUnit) unit() *Unit {
	size := 0
	for _, c := range p.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range p.chunks {
		data = append(data, c...)
	}
	return &Unit{
		Seq:      p.first.Seq,
		PTS:      p.first.PTS,
		DTS:      p.first.DTS,
		Keyframe: p.first.Keyframe(),
		Data:     data,
	}
}

// ---------------------------------------------------------------------------
// unitHeap implements a min-heap sorted by Seq.
// ---------------------------------------------------------------------------

type unitHeap []*Unit

func (h unitHeap) Len() int            { return len(h) }
func (h unitHeap) Less(i, j int) bool  { return h[i].Seq < h[j].Seq }
func (h unitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *unitHeap) Push(x interface{}) { *h = append(*h, x.(*Unit)) }

func (h *unitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return item
}
