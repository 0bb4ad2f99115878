package media

import (
	"context"
	"errors"
)

var (
	ErrInvalidState = errors.New("invalid pipeline state")
	ErrCapture      = errors.New("capture failed")
	ErrNoVideo      = errors.New("source has no video stream")
	ErrQueueClosed  = errors.New("packet queue closed")
)

// Source produces captured packets. Open may be called again after Close.
type Source interface {
	Open() ([]StreamInfo, error)
	// ReadPacket blocks until a packet is available. The caller owns it.
	ReadPacket(ctx context.Context) (*Packet, error)
	Close() error
}

// Decoder turns a captured packet into a frame. It does not take ownership
// of the packet.
type Decoder interface {
	Decode(p *Packet) (*Frame, error)
}

// Converter rescales or reformats a frame for the encoder.
type Converter interface {
	Convert(f *Frame) (*Frame, error)
}

// Encoder compresses frames. Returned packets carry timestamps in TimeBase
// and belong to the caller.
type Encoder interface {
	TimeBase() Rational
	Encode(f *Frame) ([]*Packet, error)
	Close() error
}

// Sink consumes encoded units. WriteUnit must not keep p after returning.
type Sink interface {
	WriteUnit(p *Packet) error
	Close() error
}
