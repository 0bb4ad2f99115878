package signaling

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxPayloadSize is the default bound of an encoded message, matching the
// usual broker message size.
const MaxPayloadSize = 1024

var (
	ErrPayloadTooLarge = errors.New("signaling payload exceeds maximum size")
	ErrDecode          = errors.New("malformed signaling payload")
)

// Protobuf field numbers of the wire schema:
//
//	message Transport { string mac = 1; repeated P2P p2p = 2; }
//	message P2P       { string description = 1; repeated string candidate = 2; }
const (
	fieldDeviceID    protowire.Number = 1
	fieldSession     protowire.Number = 2
	fieldDescription protowire.Number = 1
	fieldCandidate   protowire.Number = 2
)

// Encode serializes msg. Payloads larger than MaxPayloadSize are rejected
// with ErrPayloadTooLarge instead of being truncated.
func Encode(msg *Message) ([]byte, error) {
	return EncodeLimit(msg, MaxPayloadSize)
}

// EncodeLimit is Encode with a caller-provided bound. A limit <= 0 means
// MaxPayloadSize.
func EncodeLimit(msg *Message, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = MaxPayloadSize
	}

	var b []byte
	if msg.DeviceID != "" {
		b = protowire.AppendTag(b, fieldDeviceID, protowire.BytesType)
		b = protowire.AppendString(b, msg.DeviceID)
	}

	for _, s := range msg.Sessions {
		b = protowire.AppendTag(b, fieldSession, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSession(s))
	}

	if len(b) > limit {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(b), limit)
	}
	return b, nil
}

func encodeSession(s Session) []byte {
	var b []byte
	if s.Description != "" {
		b = protowire.AppendTag(b, fieldDescription, protowire.BytesType)
		b = protowire.AppendString(b, s.Description)
	}
	for _, c := range s.Candidates {
		b = protowire.AppendTag(b, fieldCandidate, protowire.BytesType)
		b = protowire.AppendString(b, c)
	}
	return b
}

// Decode parses a payload produced by Encode (or any encoder of the same
// schema). Unknown fields are skipped; structural errors return ErrDecode.
func Decode(data []byte) (*Message, error) {
	return DecodeLimit(data, MaxPayloadSize)
}

// DecodeLimit is Decode with a caller-provided bound. A limit <= 0 means
// MaxPayloadSize.
func DecodeLimit(data []byte, limit int) (*Message, error) {
	if limit <= 0 {
		limit = MaxPayloadSize
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(data), limit)
	}

	msg := &Message{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldDeviceID:
			if typ != protowire.BytesType {
				return fmt.Errorf("device id has wire type %d", typ)
			}
			msg.DeviceID = string(v)
		case fieldSession:
			if typ != protowire.BytesType {
				return fmt.Errorf("session has wire type %d", typ)
			}
			s, err := decodeSession(v)
			if err != nil {
				return err
			}
			msg.Sessions = append(msg.Sessions, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(msg.Sessions) == 0 {
		return nil, fmt.Errorf("%w: no session entry", ErrDecode)
	}
	return msg, nil
}

func decodeSession(data []byte) (Session, error) {
	var s Session
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType && (num == fieldDescription || num == fieldCandidate) {
			return fmt.Errorf("session field %d has wire type %d", num, typ)
		}
		switch num {
		case fieldDescription:
			s.Description = string(v)
		case fieldCandidate:
			s.Candidates = append(s.Candidates, string(v))
		}
		return nil
	})
	return s, err
}

// walk iterates the top-level fields of data. For length-delimited fields v
// is the payload; for other wire types v is nil and the value is skipped.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]

		var v []byte
		if typ == protowire.BytesType {
			v, n = protowire.ConsumeBytes(data)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(num, typ, v); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	return nil
}
