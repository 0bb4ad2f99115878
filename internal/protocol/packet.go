// Package protocol defines how encoded media units travel over the live data
// channel: each unit is split into chunks that carry a fixed header.
package protocol

// Packet type constants.
const (
	TypeChunk uint8 = 0x01 // One chunk of an encoded unit
	TypeEnd   uint8 = 0x02 // Stream stopped, no payload
)

// Flag bits.
const (
	FlagKeyframe uint8 = 1 << 0
)

// HeaderSize is the fixed header size:
// Type(1) + Flags(1) + Seq(4) + Index(2) + Count(2) + PTS(8) + DTS(8).
const HeaderSize = 26

// MaxChunks bounds how many chunks one unit may be split into.
const MaxChunks = 1<<16 - 1

// Packet is one frame on the live data channel.
type Packet struct {
	Type    uint8  // TypeChunk or TypeEnd
	Flags   uint8  // FlagKeyframe
	Seq     uint32 // Unit sequence number, shared by all chunks of a unit
	Index   uint16 // Chunk position within the unit
	Count   uint16 // Number of chunks in the unit
	PTS     int64  // Unit timestamps in the output time base
	DTS     int64
	Payload []byte // Only used for TypeChunk
}

// Keyframe reports whether the unit is a keyframe.
func (p *Packet) Keyframe() bool { return p.Flags&FlagKeyframe != 0 }

// Last reports whether p is the final chunk of its unit.
func (p *Packet) Last() bool { return p.Index+1 >= p.Count }
