// Package webrtc adapts a pion PeerConnection to the engine contract the
// session orchestrator drives. Every pion callback is forwarded to a
// peer.Handlers function and returns immediately.
package webrtc

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camlink/internal/ice"
	"github.com/1ureka/camlink/internal/peer"
)

// ErrNoConnection is returned by operations on a closed engine.
var ErrNoConnection = errors.New("peer connection closed")

// Config holds the connectivity-assist servers and SCTP limits.
type Config struct {
	ICEServers     []string
	MaxMessageSize uint32
}

// Engine owns one pion PeerConnection.
type Engine struct {
	pc *webrtc.PeerConnection
	h  peer.Handlers
}

// New creates a PeerConnection and registers h on it. Callbacks may fire as
// soon as a description is set.
func New(cfg Config, h peer.Handlers) (*Engine, error) {
	var s webrtc.SettingEngine
	if cfg.MaxMessageSize > 0 {
		s.SetSCTPMaxMessageSize(cfg.MaxMessageSize)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(s))

	conf := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		conf.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	pc, err := api.NewPeerConnection(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	e := &Engine{pc: pc, h: h}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering, reported separately below.
		if c == nil || h.OnLocalCandidate == nil {
			return
		}
		h.OnLocalCandidate(c.ToJSON().Candidate)
	})

	pc.OnICEGatheringStateChange(func(s webrtc.ICEGatheringState) {
		if h.OnGatheringState != nil {
			h.OnGatheringState(gatheringState(s))
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if h.OnConnectionState != nil {
			h.OnConnectionState(connectionState(s))
		}
	})

	pc.OnDataChannel(e.track)

	return e, nil
}

// track wires a pion DataChannel's lifecycle to the handlers.
func (e *Engine) track(dc *webrtc.DataChannel) {
	ch := newChannel(dc)
	label := dc.Label()

	dc.OnOpen(func() {
		if e.h.OnChannelOpen != nil {
			e.h.OnChannelOpen(ch)
		}
	})
	dc.OnClose(func() {
		if e.h.OnChannelClose != nil {
			e.h.OnChannelClose(label)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if e.h.OnMessage != nil {
			e.h.OnMessage(label, msg.Data, msg.IsString)
		}
	})
}

// ---------------------------------------------------------------------------
// Negotiation
// ---------------------------------------------------------------------------

// OpenChannel creates an ordered, reliable channel and starts negotiation by
// producing a local offer.
func (e *Engine) OpenChannel(label string) error {
	ordered := true
	dc, err := e.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("CreateDataChannel: %w", err)
	}
	e.track(dc)

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	return e.setLocal(offer)
}

// setLocal reports the description before applying it so that it is queued
// ahead of any candidate produced by the gathering it starts.
func (e *Engine) setLocal(desc webrtc.SessionDescription) error {
	if e.h.OnLocalDescription != nil {
		e.h.OnLocalDescription(desc.SDP)
	}
	if err := e.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return nil
}

// ApplyRemoteDescription applies sdp as the remote description. The SDP type
// follows from the signaling state: an answer if we have an outstanding
// offer, otherwise an offer, in which case a local answer is produced.
func (e *Engine) ApplyRemoteDescription(sdp string) error {
	typ := webrtc.SDPTypeOffer
	if e.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		typ = webrtc.SDPTypeAnswer
	}

	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("SetRemoteDescription(%s): %w", typ, err)
	}
	if typ == webrtc.SDPTypeAnswer {
		return nil
	}

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	return e.setLocal(answer)
}

// AddRemoteCandidate applies one remote candidate. The "a=" prefix is optional.
func (e *Engine) AddRemoteCandidate(candidate string) error {
	if err := e.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: ice.Normalize(candidate)}); err != nil {
		return fmt.Errorf("AddICECandidate: %w", err)
	}
	return nil
}

// Close tears down the PeerConnection and all of its channels.
func (e *Engine) Close() error {
	if e.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return nil
	}
	return e.pc.Close()
}

// ---------------------------------------------------------------------------
// State mapping
// ---------------------------------------------------------------------------

func connectionState(s webrtc.PeerConnectionState) peer.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return peer.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return peer.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return peer.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return peer.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return peer.ConnectionClosed
	default:
		return peer.ConnectionNew
	}
}

func gatheringState(s webrtc.ICEGatheringState) peer.GatheringState {
	switch s {
	case webrtc.ICEGatheringStateGathering:
		return peer.GatheringInProgress
	case webrtc.ICEGatheringStateComplete:
		return peer.GatheringComplete
	default:
		return peer.GatheringNew
	}
}
