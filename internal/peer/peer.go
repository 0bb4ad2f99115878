// Package peer defines the engine-neutral view of a peer connection: its
// observable states, the callbacks an engine delivers and the data channel
// handle the rest of the system sends through.
package peer

import "context"

// ConnectionState mirrors the peer connection lifecycle.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseConnectionState is the inverse of ConnectionState.String.
func ParseConnectionState(s string) (ConnectionState, bool) {
	for st := ConnectionNew; st <= ConnectionClosed; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return ConnectionNew, false
}

// GatheringState is the progress of local candidate discovery.
type GatheringState int

const (
	GatheringNew GatheringState = iota
	GatheringInProgress
	GatheringComplete
)

func (s GatheringState) String() string {
	switch s {
	case GatheringNew:
		return "new"
	case GatheringInProgress:
		return "in-progress"
	case GatheringComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ParseGatheringState is the inverse of GatheringState.String.
func ParseGatheringState(s string) (GatheringState, bool) {
	for st := GatheringNew; st <= GatheringComplete; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return GatheringNew, false
}

// DataChannel is an open, label-keyed byte stream.
type DataChannel interface {
	Label() string

	// Send writes one binary message, blocking while the channel is over its
	// buffered-amount high-water mark or until ctx is cancelled.
	Send(ctx context.Context, data []byte) error

	// SendText writes one text message without backpressure.
	SendText(text string) error

	Close() error
}

// Handlers are the callbacks an engine delivers. They run on the engine's own
// goroutines and must return promptly.
type Handlers struct {
	OnLocalDescription func(sdp string)
	OnLocalCandidate   func(candidate string)
	OnConnectionState  func(ConnectionState)
	OnGatheringState   func(GatheringState)
	OnChannelOpen      func(DataChannel)
	OnChannelClose     func(label string)
	OnMessage          func(label string, data []byte, isText bool)
}
