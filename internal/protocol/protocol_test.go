package protocol_test

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/1ureka/camlink/internal/protocol"
)

// TestEncodeDecode verifies the header fields survive a trip through the codec
// for both packet types and a range of payload sizes.
func TestEncodeDecode(t *testing.T) {
	testCases := []struct {
		name string
		pkt  *protocol.Packet
	}{
		{
			name: "keyframe chunk with small payload",
			pkt: &protocol.Packet{
				Type:    protocol.TypeChunk,
				Flags:   protocol.FlagKeyframe,
				Seq:     42,
				Index:   0,
				Count:   1,
				PTS:     3003,
				DTS:     3003,
				Payload: []byte("jpeg"),
			},
		},
		{
			name: "middle chunk of a large unit",
			pkt: &protocol.Packet{
				Type:    protocol.TypeChunk,
				Seq:     0xDEADBEEF,
				Index:   7,
				Count:   12,
				PTS:     90000,
				DTS:     87000,
				Payload: make([]byte, 16*1024),
			},
		},
		{
			name: "end of stream",
			pkt:  &protocol.Packet{Type: protocol.TypeEnd, Seq: 999},
		},
		{
			name: "boundary timestamps",
			pkt: &protocol.Packet{
				Type:  protocol.TypeChunk,
				Seq:   math.MaxUint32,
				Index: protocol.MaxChunks - 1,
				Count: protocol.MaxChunks,
				PTS:   math.MaxInt64,
				DTS:   math.MinInt64,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := protocol.Decode(protocol.Encode(tc.pkt))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Type != tc.pkt.Type || decoded.Flags != tc.pkt.Flags {
				t.Errorf("Type/Flags mismatch: got %d/%d, want %d/%d", decoded.Type, decoded.Flags, tc.pkt.Type, tc.pkt.Flags)
			}
			if decoded.Seq != tc.pkt.Seq || decoded.Index != tc.pkt.Index || decoded.Count != tc.pkt.Count {
				t.Errorf("Seq/Index/Count mismatch: got %d/%d/%d", decoded.Seq, decoded.Index, decoded.Count)
			}
			if decoded.PTS != tc.pkt.PTS || decoded.DTS != tc.pkt.DTS {
				t.Errorf("PTS/DTS mismatch: got %d/%d, want %d/%d", decoded.PTS, decoded.DTS, tc.pkt.PTS, tc.pkt.DTS)
			}
			if !bytes.Equal(decoded.Payload, tc.pkt.Payload) {
				t.Errorf("Payload mismatch: got %d bytes, want %d", len(decoded.Payload), len(tc.pkt.Payload))
			}
		})
	}
}

// TestDecodeMalformed verifies that Decode rejects short frames, unknown types
// and inconsistent chunk positions.
func TestDecodeMalformed(t *testing.T) {
	valid := protocol.Encode(&protocol.Packet{Type: protocol.TypeChunk, Index: 0, Count: 1})

	unknownType := append([]byte(nil), valid...)
	unknownType[0] = 0x7F

	zeroCount := protocol.Encode(&protocol.Packet{Type: protocol.TypeChunk})
	indexPastCount := protocol.Encode(&protocol.Packet{Type: protocol.TypeChunk, Index: 3, Count: 3})

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"one less than HeaderSize", valid[:protocol.HeaderSize-1]},
		{"unknown type", unknownType},
		{"zero count", zeroCount},
		{"index past count", indexPastCount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(tc.data)
			if !errors.Is(err, protocol.ErrMalformed) {
				t.Fatalf("Decode = %v, want ErrMalformed", err)
			}
		})
	}
}

// TestDecodeExactHeaderSize verifies that a header-only frame decodes with an
// empty payload.
func TestDecodeExactHeaderSize(t *testing.T) {
	encoded := protocol.Encode(&protocol.Packet{Type: protocol.TypeEnd, Seq: 777})
	if len(encoded) != protocol.HeaderSize {
		t.Fatalf("Expected encoded size to be %d, got %d", protocol.HeaderSize, len(encoded))
	}

	decoded, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Seq != 777 || len(decoded.Payload) != 0 {
		t.Errorf("Decoded packet mismatch: %+v", decoded)
	}
}

// TestDecodePreservesPayload verifies that the payload is copied and not
// aliased to the input buffer.
func TestDecodePreservesPayload(t *testing.T) {
	encoded := protocol.Encode(&protocol.Packet{
		Type:    protocol.TypeChunk,
		Count:   1,
		Payload: []byte("original"),
	})
	decoded, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	encoded[protocol.HeaderSize] = 0xFF

	if !bytes.Equal(decoded.Payload, []byte("original")) {
		t.Errorf("Payload was incorrectly aliased: got %v", decoded.Payload)
	}
}

// TestSplit verifies chunk counts, positions and that concatenating the
// chunks restores the unit.
func TestSplit(t *testing.T) {
	testCases := []struct {
		size      int
		chunkSize int
		want      int
	}{
		{0, 1024, 1},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{64 * 1024, 16 * 1024, 4},
		{100*1024 + 3, 16 * 1024, 7},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d bytes in %d", tc.size, tc.chunkSize), func(t *testing.T) {
			data := make([]byte, tc.size)
			for i := range data {
				data[i] = byte(i % 251)
			}

			pkts, err := protocol.Split(9, 1000, 900, true, data, tc.chunkSize)
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			if len(pkts) != tc.want {
				t.Fatalf("got %d chunks, want %d", len(pkts), tc.want)
			}

			var joined []byte
			for i, p := range pkts {
				if int(p.Index) != i || int(p.Count) != tc.want || p.Seq != 9 || !p.Keyframe() {
					t.Errorf("chunk %d header = %+v", i, p)
				}
				if p.Last() != (i == tc.want-1) {
					t.Errorf("chunk %d Last() = %v", i, p.Last())
				}
				joined = append(joined, p.Payload...)
			}
			if !bytes.Equal(joined, data) {
				t.Error("joined chunks differ from the unit")
			}
		})
	}
}

func TestSplitRejects(t *testing.T) {
	if _, err := protocol.Split(1, 0, 0, false, []byte("x"), 0); err == nil {
		t.Error("expected an error for a zero chunk size")
	}
	if _, err := protocol.Split(1, 0, 0, false, make([]byte, protocol.MaxChunks+1), 1); err == nil {
		t.Error("expected an error when the unit needs too many chunks")
	}
}
