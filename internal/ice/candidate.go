// Package ice classifies connectivity candidates and implements the
// candidate selection policy applied to each inbound signaling message.
package ice

import (
	"strings"

	pionice "github.com/pion/ice/v4"
)

// Type is the candidate type keyword carried after the literal "typ" token.
type Type int

const (
	TypeUnknown Type = iota
	TypeHost
	TypeServerReflexive
	TypePeerReflexive
	TypeRelay
)

func (t Type) String() string {
	switch t {
	case TypeHost:
		return "host"
	case TypeServerReflexive:
		return "srflx"
	case TypePeerReflexive:
		return "prflx"
	case TypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// ParseType extracts the candidate type from its textual grammar:
//
//	[a=]candidate:<foundation> <component> <transport> <priority> <address> <port> typ <type> ...
//
// Anything pion cannot parse is TypeUnknown.
func ParseType(candidate string) Type {
	c, err := pionice.UnmarshalCandidate(Normalize(candidate))
	if err != nil {
		return TypeUnknown
	}

	switch c.Type() {
	case pionice.CandidateTypeHost:
		return TypeHost
	case pionice.CandidateTypeServerReflexive:
		return TypeServerReflexive
	case pionice.CandidateTypePeerReflexive:
		return TypePeerReflexive
	case pionice.CandidateTypeRelay:
		return TypeRelay
	default:
		return TypeUnknown
	}
}

// Normalize strips the SDP attribute prefix so the candidate can be handed to
// an engine that expects the bare "candidate:..." form.
func Normalize(candidate string) string {
	return strings.TrimPrefix(strings.TrimSpace(candidate), "a=")
}
