package live

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/camlink/internal/media"
	"github.com/1ureka/camlink/internal/protocol"
)

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

func chunks(t *testing.T, seq uint32, data string, size int) []*protocol.Packet {
	t.Helper()
	pkts, err := protocol.Split(seq, int64(seq)*3000, int64(seq)*3000, seq == 1, []byte(data), size)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	return pkts
}

func seqs(units []*Unit) []uint32 {
	out := make([]uint32, len(units))
	for i, u := range units {
		out[i] = u.Seq
	}
	return out
}

func equalSeqs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAssemblerInOrder(t *testing.T) {
	a := NewAssembler(0)
	var got []*Unit
	for seq := uint32(1); seq <= 3; seq++ {
		for _, c := range chunks(t, seq, "abcdefghij", 4) {
			got = append(got, a.Feed(c)...)
		}
	}

	if !equalSeqs(seqs(got), []uint32{1, 2, 3}) {
		t.Fatalf("delivered %v, want [1 2 3]", seqs(got))
	}
	for _, u := range got {
		if string(u.Data) != "abcdefghij" {
			t.Errorf("unit %d data = %q", u.Seq, u.Data)
		}
		if u.PTS != int64(u.Seq)*3000 {
			t.Errorf("unit %d PTS = %d", u.Seq, u.PTS)
		}
	}
	if !got[0].Keyframe || got[1].Keyframe {
		t.Error("keyframe flag not preserved")
	}
}

func TestAssemblerReorders(t *testing.T) {
	a := NewAssembler(0)
	c1 := chunks(t, 1, "one", 8)
	c2 := chunks(t, 2, "two", 8)
	c3 := chunks(t, 3, "three!", 3) // two chunks

	if got := a.Feed(c1[0]); !equalSeqs(seqs(got), []uint32{1}) {
		t.Fatalf("after unit 1: %v", seqs(got))
	}
	// Unit 3 starts, unit 2 completes out of order, then unit 3 finishes.
	if got := a.Feed(c3[0]); len(got) != 0 {
		t.Fatalf("partial unit delivered: %v", seqs(got))
	}
	if got := a.Feed(c2[0]); !equalSeqs(seqs(got), []uint32{2}) {
		t.Fatalf("after unit 2: %v", seqs(got))
	}
	if got := a.Feed(c3[1]); !equalSeqs(seqs(got), []uint32{3}) || string(got[0].Data) != "three!" {
		t.Fatalf("after unit 3: %v", seqs(got))
	}
}

func TestAssemblerSkipsDroppedUnit(t *testing.T) {
	a := NewAssembler(0)
	a.Feed(chunks(t, 1, "one", 8)[0])

	// Unit 2 was dropped by the sender as a whole; nothing can fill the gap.
	got := a.Feed(chunks(t, 3, "three", 8)[0])
	if !equalSeqs(seqs(got), []uint32{3}) {
		t.Fatalf("delivered %v, want [3]", seqs(got))
	}
}

func TestAssemblerWindowOverflow(t *testing.T) {
	const window = 2
	a := NewAssembler(window)
	a.Feed(chunks(t, 1, "one", 8)[0])

	// Unit 2 stays partial forever; units 3..5 complete behind it.
	a.Feed(chunks(t, 2, "two-and-more", 4)[0])

	var got []*Unit
	for seq := uint32(3); seq <= 5; seq++ {
		got = append(got, a.Feed(chunks(t, seq, "x", 8)[0])...)
	}
	if !equalSeqs(seqs(got), []uint32{3, 4, 5}) {
		t.Fatalf("delivered %v, want [3 4 5]", seqs(got))
	}
	if a.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", a.Pending())
	}
}

func TestAssemblerIgnoresDuplicatesAndOld(t *testing.T) {
	a := NewAssembler(0)
	c := chunks(t, 5, "abcdef", 3)

	a.Feed(c[0])
	a.Feed(c[0])
	got := a.Feed(c[1])
	if len(got) != 1 || string(got[0].Data) != "abcdef" {
		t.Fatalf("unexpected delivery: %v", seqs(got))
	}
	if got := a.Feed(c[1]); len(got) != 0 {
		t.Errorf("old chunk produced %v", seqs(got))
	}
}

func TestAssemblerEndResets(t *testing.T) {
	a := NewAssembler(0)
	a.Feed(chunks(t, 7, "seven", 8)[0])
	a.Feed(chunks(t, 9, "partial unit", 4)[0])
	a.Feed(&protocol.Packet{Type: protocol.TypeEnd, Seq: 9})

	if a.Pending() != 0 {
		t.Fatalf("Pending() = %d after end, want 0", a.Pending())
	}
	// A new stream restarts the numbering.
	if got := a.Feed(chunks(t, 1, "one", 8)[0]); !equalSeqs(seqs(got), []uint32{1}) {
		t.Errorf("after restart: %v", seqs(got))
	}
}

// ---------------------------------------------------------------------------
// Sender -> Receiver
// ---------------------------------------------------------------------------

// pipeChannel hands every sent frame straight to a receiver.
type pipeChannel struct {
	label string
	recv  *Receiver
	fail  error
}

func (c *pipeChannel) Label() string { return c.label }
func (c *pipeChannel) Close() error  { return nil }

func (c *pipeChannel) Send(_ context.Context, data []byte) error {
	if c.fail != nil {
		return c.fail
	}
	c.recv.OnMessage(c.label, data, false)
	return nil
}

func (c *pipeChannel) SendText(text string) error {
	c.recv.OnMessage(c.label, []byte(text), true)
	return nil
}

type collectSink struct {
	mu    sync.Mutex
	units [][]byte
	pts   []int64
}

func (s *collectSink) WriteUnit(p *media.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, append([]byte(nil), p.Data...))
	s.pts = append(s.pts, p.PTS)
	return nil
}

func (s *collectSink) Close() error { return nil }

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

func TestSenderToReceiver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &collectSink{}
	recv := NewReceiver(sink)
	sender := NewSender(1024)
	sender.Attach(&pipeChannel{label: "live", recv: recv})

	go sender.Run(ctx)
	go recv.Run(ctx)

	payload := bytes.Repeat([]byte("0123456789"), 500) // 5 chunks
	const total = 20
	for i := 0; i < total; i++ {
		p := media.NewPacket(payload)
		p.PTS = int64(i) * 3000
		p.DTS = p.PTS
		if err := sender.WriteUnit(p); err != nil {
			t.Fatalf("WriteUnit failed: %v", err)
		}
		p.Release()
	}

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() < total {
		if time.Now().After(deadline) {
			t.Fatalf("received %d units, want %d", sink.count(), total)
		}
		time.Sleep(5 * time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, u := range sink.units {
		if !bytes.Equal(u, payload) {
			t.Fatalf("unit %d corrupted", i)
		}
		if sink.pts[i] != int64(i)*3000 {
			t.Errorf("unit %d PTS = %d", i, sink.pts[i])
		}
	}
}

func TestSenderWithoutChannelDrops(t *testing.T) {
	sender := NewSender(1024)
	p := media.NewPacket([]byte("frame"))
	defer p.Release()

	if err := sender.WriteUnit(p); err != nil {
		t.Fatalf("WriteUnit failed: %v", err)
	}
	if n := len(sender.inbox); n != 0 {
		t.Errorf("queued %d chunk(s) without a channel", n)
	}
}

func TestSenderDropsWholeUnitWhenFull(t *testing.T) {
	sender := NewSender(1)
	sender.Attach(&pipeChannel{label: "live", fail: errors.New("unused")})

	// Fill all but two slots, then offer a three-chunk unit.
	for i := 0; i < sendBufferSize-2; i++ {
		sender.inbox <- nil
	}
	p := media.NewPacket([]byte("abc"))
	defer p.Release()
	if err := sender.WriteUnit(p); err != nil {
		t.Fatalf("WriteUnit failed: %v", err)
	}
	if n := len(sender.inbox); n != sendBufferSize-2 {
		t.Errorf("inbox holds %d entries, want %d (unit dropped whole)", n, sendBufferSize-2)
	}
}

func TestDetachOnlyCurrentLabel(t *testing.T) {
	sender := NewSender(0)
	sender.Attach(&pipeChannel{label: "live"})

	sender.Detach("other")
	if sender.channel() == nil {
		t.Fatal("detaching another label removed the channel")
	}
	sender.Detach("live")
	if sender.channel() != nil {
		t.Fatal("channel still attached")
	}
}
