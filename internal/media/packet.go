// Core packet, frame and timing types shared by the capture, transcode and
// sink stages.
package media

import (
	"image"
	"math"
	"sync"
	"sync/atomic"
)

// NoPTS marks an undefined timestamp.
const NoPTS int64 = math.MinInt64

// Rational is a time base: one tick lasts Num/Den seconds.
type Rational struct {
	Num int64
	Den int64
}

// Valid reports whether r can be used to rescale.
func (r Rational) Valid() bool { return r.Num > 0 && r.Den > 0 }

// Common time bases.
var (
	Microseconds = Rational{1, 1_000_000}
	MPEGClock    = Rational{1, 90_000}
)

// Rescale converts v from one time base to another, rounding to the nearest
// tick. NoPTS is passed through.
func Rescale(v int64, from, to Rational) int64 {
	if v == NoPTS || !from.Valid() || !to.Valid() {
		return v
	}
	num := from.Num * to.Den
	den := from.Den * to.Num
	if v >= 0 {
		return (v*num + den/2) / den
	}
	return -((-v*num + den/2) / den)
}

// StreamKind separates the video stream from anything else a source emits.
type StreamKind int

const (
	StreamVideo StreamKind = iota
	StreamOther
)

// StreamInfo describes one elementary stream of a source.
type StreamInfo struct {
	Index    int
	Kind     StreamKind
	Codec    string // "mjpeg" for the sources in this module
	Width    int
	Height   int
	FPS      int
	TimeBase Rational
}

// ---------------------------------------------------------------------------
// Packet
// ---------------------------------------------------------------------------

// Packet is one compressed unit, either captured or encoded. A packet has
// exactly one owner at a time; the owner calls Release on every exit path.
type Packet struct {
	Data        []byte
	PTS         int64
	DTS         int64
	StreamIndex int
	Keyframe    bool

	buf *[]byte
}

var (
	bufPool = sync.Pool{New: func() any {
		b := make([]byte, 0, 64*1024)
		return &b
	}}
	outstanding atomic.Int64
)

// NewPacket returns a packet holding a pooled copy of data.
func NewPacket(data []byte) *Packet {
	buf := bufPool.Get().(*[]byte)
	*buf = append((*buf)[:0], data...)
	outstanding.Add(1)
	return &Packet{
		Data: *buf,
		PTS:  NoPTS,
		DTS:  NoPTS,
		buf:  buf,
	}
}

// Release returns the packet's buffer to the pool. Calling it more than once
// is a no-op.
func (p *Packet) Release() {
	if p == nil || p.buf == nil {
		return
	}
	*p.buf = p.Data[:0]
	bufPool.Put(p.buf)
	p.buf = nil
	p.Data = nil
	outstanding.Add(-1)
}

// Outstanding returns how many packets have been created and not released.
func Outstanding() int64 { return outstanding.Load() }

// Frame is one decoded picture.
type Frame struct {
	Image image.Image
	PTS   int64
}
