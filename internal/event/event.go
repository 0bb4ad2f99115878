// Package event carries engine callbacks and inbound signaling to the single
// goroutine that owns a session's state.
package event

import "github.com/1ureka/camlink/internal/peer"

// Kind tags an Event.
type Kind int

const (
	LocalDescriptionProduced Kind = iota
	LocalCandidateProduced
	ConnectionStateChanged
	GatheringStateChanged
	RemoteDescriptionReceived
	RemoteCandidateReceived
	ChannelOpened
	ChannelClosed
	ChannelRequested
	Error
)

func (k Kind) String() string {
	switch k {
	case LocalDescriptionProduced:
		return "LocalDescriptionProduced"
	case LocalCandidateProduced:
		return "LocalCandidateProduced"
	case ConnectionStateChanged:
		return "ConnectionStateChanged"
	case GatheringStateChanged:
		return "GatheringStateChanged"
	case RemoteDescriptionReceived:
		return "RemoteDescriptionReceived"
	case RemoteCandidateReceived:
		return "RemoteCandidateReceived"
	case ChannelOpened:
		return "ChannelOpened"
	case ChannelClosed:
		return "ChannelClosed"
	case ChannelRequested:
		return "ChannelRequested"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is one unit of work for the session loop.
//
// Data is the string payload: an SDP, a candidate, a state name, a channel
// label or an error message depending on Kind.
type Event struct {
	Kind Kind
	Data string

	// Source is the sender's device id on events built from inbound signaling.
	Source string

	// Batch holds every candidate of the inbound message on RemoteCandidateReceived.
	Batch []string

	// Channel is set on ChannelOpened.
	Channel peer.DataChannel
}
