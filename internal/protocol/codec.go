package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned for frames that cannot be decoded.
var ErrMalformed = errors.New("malformed live packet")

// Encode serializes a Packet into a byte slice for DataChannel transmission.
func Encode(pkt *Packet) []byte {
	buf := make([]byte, HeaderSize+len(pkt.Payload))
	buf[0] = pkt.Type
	buf[1] = pkt.Flags
	binary.BigEndian.PutUint32(buf[2:6], pkt.Seq)
	binary.BigEndian.PutUint16(buf[6:8], pkt.Index)
	binary.BigEndian.PutUint16(buf[8:10], pkt.Count)
	binary.BigEndian.PutUint64(buf[10:18], uint64(pkt.PTS))
	binary.BigEndian.PutUint64(buf[18:26], uint64(pkt.DTS))
	copy(buf[HeaderSize:], pkt.Payload)
	return buf
}

// Decode deserializes a byte slice into a Packet. The payload is copied.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrMalformed, len(data), HeaderSize)
	}
	pkt := &Packet{
		Type:  data[0],
		Flags: data[1],
		Seq:   binary.BigEndian.Uint32(data[2:6]),
		Index: binary.BigEndian.Uint16(data[6:8]),
		Count: binary.BigEndian.Uint16(data[8:10]),
		PTS:   int64(binary.BigEndian.Uint64(data[10:18])),
		DTS:   int64(binary.BigEndian.Uint64(data[18:26])),
	}

	switch pkt.Type {
	case TypeChunk:
		if pkt.Count == 0 || pkt.Index >= pkt.Count {
			return nil, fmt.Errorf("%w: chunk %d of %d", ErrMalformed, pkt.Index, pkt.Count)
		}
	case TypeEnd:
	default:
		return nil, fmt.Errorf("%w: unknown type 0x%02x", ErrMalformed, pkt.Type)
	}

	if len(data) > HeaderSize {
		pkt.Payload = make([]byte, len(data)-HeaderSize)
		copy(pkt.Payload, data[HeaderSize:])
	}
	return pkt, nil
}

// Split cuts one encoded unit into chunks of at most chunkSize payload bytes.
// An empty unit still yields one chunk so that its sequence number is seen.
func Split(seq uint32, pts, dts int64, keyframe bool, data []byte, chunkSize int) ([]*Packet, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	count := (len(data) + chunkSize - 1) / chunkSize
	if count == 0 {
		count = 1
	}
	if count > MaxChunks {
		return nil, fmt.Errorf("unit of %d bytes needs %d chunks (max %d)", len(data), count, MaxChunks)
	}

	var flags uint8
	if keyframe {
		flags |= FlagKeyframe
	}

	pkts := make([]*Packet, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(data))
		pkts = append(pkts, &Packet{
			Type:    TypeChunk,
			Flags:   flags,
			Seq:     seq,
			Index:   uint16(i),
			Count:   uint16(count),
			PTS:     pts,
			DTS:     dts,
			Payload: data[start:end],
		})
	}
	return pkts, nil
}
