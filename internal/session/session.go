// Package session drives one peer connection from setup to teardown.
//
// Engine callbacks and inbound signaling only push events onto the session's
// bus; a single loop goroutine (Run) consumes them and performs every state
// mutation and every engine call, so nothing inside the session needs a lock
// beyond the bus itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/event"
	"github.com/1ureka/camlink/internal/ice"
	"github.com/1ureka/camlink/internal/peer"
	"github.com/1ureka/camlink/internal/pubsub"
	"github.com/1ureka/camlink/internal/signaling"
	"github.com/1ureka/camlink/internal/util"
)

var (
	ErrEngineUnavailable  = errors.New("peer connection engine unavailable")
	ErrInvalidState       = errors.New("invalid session state")
	ErrNegotiationTimeout = errors.New("peer connection negotiation timed out")
	ErrConnectionFailed   = errors.New("peer connection failed")

	// errPeerClosed ends the loop without reporting a failure.
	errPeerClosed = errors.New("peer connection closed")
)

// Engine is the peer-connection engine a session drives. All methods are
// called from the session loop only.
type Engine interface {
	// OpenChannel creates the outbound channel and starts negotiation.
	OpenChannel(label string) error
	ApplyRemoteDescription(sdp string) error
	AddRemoteCandidate(candidate string) error
	Close() error
}

// EngineFactory builds an engine whose callbacks are h.
type EngineFactory func(h peer.Handlers) (Engine, error)

// Streamer is the media side started once the peer is connected.
type Streamer interface {
	Start() error
	Stop() error
	// Attach hands the live channel to the stream; Detach withdraws it.
	Attach(ch peer.DataChannel)
	Detach(label string)
}

// Config holds the per-session parameters.
type Config struct {
	Role               config.Role
	DeviceID           string
	PeerDeviceID       string // viewer: expected camera, empty for the first one to offer
	ChannelLabel       string
	Greeting           string
	NegotiationTimeout time.Duration
	PublishTimeout     time.Duration
	MaxPayload         int // 0 selects signaling.MaxPayloadSize
}

// ConfigFrom extracts the session parameters from a process config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Role:               c.Role,
		DeviceID:           c.DeviceID,
		PeerDeviceID:       c.PeerDeviceID,
		ChannelLabel:       c.Peer.ChannelLabel,
		Greeting:           c.Peer.Greeting,
		NegotiationTimeout: c.Peer.NegotiationTimeout,
		PublishTimeout:     c.Signaling.PublishTimeout,
		MaxPayload:         c.Signaling.MaxPayload,
	}
}

// Options are the optional collaborators of a session.
type Options struct {
	Streamer Streamer

	// OnMessage receives every inbound data channel message. It runs on an
	// engine goroutine and must not block.
	OnMessage func(label string, data []byte, isText bool)
}

// Session is the explicit context of one peer connection: its engine, its
// signaling channel and its event bus.
type Session struct {
	id        string
	cfg       Config
	bus       *event.Bus
	broker    pubsub.Broker
	newEngine EngineFactory
	opts      Options
	log       util.Scope

	runOnce sync.Once

	// Owned by the loop goroutine.
	engine    Engine
	pending   *signaling.Message
	channels  map[string]peer.DataChannel
	peerID    string
	connected bool
	greeted   bool
	streaming bool
	timer     *time.Timer

	statusMu sync.Mutex
	status   Status
}

// Status is a snapshot of the session for reporting.
type Status struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	DeviceID   string `json:"deviceId"`
	PeerID     string `json:"peerId"`
	Connection string `json:"connection"`
	Gathering  string `json:"gathering"`
	Channels   int    `json:"channels"`
	Streaming  bool   `json:"streaming"`
}

// New creates a session. Nothing happens until Run.
func New(cfg Config, broker pubsub.Broker, newEngine EngineFactory, opts Options) *Session {
	id := uuid.NewString()[:8]
	s := &Session{
		id:        id,
		cfg:       cfg,
		bus:       event.NewBus(),
		broker:    broker,
		newEngine: newEngine,
		opts:      opts,
		log:       util.Scope("session " + id),
		pending:   signaling.NewMessage(cfg.DeviceID),
		channels:  make(map[string]peer.DataChannel),
	}
	s.status = Status{
		ID:         id,
		Role:       string(cfg.Role),
		DeviceID:   cfg.DeviceID,
		Connection: peer.ConnectionNew.String(),
		Gathering:  peer.GatheringNew.String(),
	}
	return s
}

// ID returns the short session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Status returns the latest snapshot.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Session) updateStatus(fn func(*Status)) {
	s.statusMu.Lock()
	fn(&s.status)
	s.statusMu.Unlock()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Run subscribes to the signaling topic, sets up the engine and consumes
// events until the peer connection closes, fails, ctx is cancelled or
// negotiation exceeds its timeout. It may be called once.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("run: %w", ErrInvalidState)
	}
	defer s.teardown()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	topic := s.subscribeTopic()
	if err := s.broker.Subscribe(ctx, topic, s.HandleSignal); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	s.log.Info("listening for signaling on %s", topic)

	s.setup()

	s.timer = time.AfterFunc(s.cfg.NegotiationTimeout, func() { cancel(ErrNegotiationTimeout) })
	defer s.timer.Stop()

	for {
		ev, err := s.bus.Pop(ctx)
		if err != nil {
			if cause := context.Cause(ctx); errors.Is(cause, ErrNegotiationTimeout) {
				return fmt.Errorf("%w after %s", ErrNegotiationTimeout, s.cfg.NegotiationTimeout)
			}
			if errors.Is(err, event.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := s.handle(ctx, ev); err != nil {
			if errors.Is(err, errPeerClosed) {
				return nil
			}
			return err
		}
	}
}

// setup builds the engine. A construction failure becomes an Error event and
// leaves the engine nil; operations that need it then fail the session.
func (s *Session) setup() {
	engine, err := s.newEngine(s.handlers())
	if err != nil {
		s.bus.Push(event.Event{Kind: event.Error, Data: fmt.Sprintf("engine setup: %v", err)})
	} else {
		s.engine = engine
	}

	if s.cfg.Role.Offerer() {
		s.bus.Push(event.Event{Kind: event.ChannelRequested, Data: s.cfg.ChannelLabel})
	}
}

// teardown runs on the loop goroutine when Run returns.
func (s *Session) teardown() {
	s.bus.Close()
	s.stopStream()

	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.log.Warning("failed to close peer connection: %v", err)
		}
	}
	for label := range s.channels {
		delete(s.channels, label)
	}
	s.updateStatus(func(st *Status) { st.Channels = 0 })
}

func (s *Session) subscribeTopic() string {
	if s.cfg.Role == config.RoleCamera {
		return signaling.SubscribeTopic(s.cfg.Role, s.cfg.DeviceID)
	}
	return signaling.SubscribeTopic(s.cfg.Role, s.cfg.PeerDeviceID)
}

// ---------------------------------------------------------------------------
// Producers: engine callbacks and inbound signaling
// ---------------------------------------------------------------------------

// handlers adapts engine callbacks to bus pushes.
func (s *Session) handlers() peer.Handlers {
	return peer.Handlers{
		OnLocalDescription: func(sdp string) {
			s.bus.Push(event.Event{Kind: event.LocalDescriptionProduced, Data: sdp})
		},
		OnLocalCandidate: func(candidate string) {
			s.bus.Push(event.Event{Kind: event.LocalCandidateProduced, Data: candidate})
		},
		OnConnectionState: func(st peer.ConnectionState) {
			s.bus.Push(event.Event{Kind: event.ConnectionStateChanged, Data: st.String()})
		},
		OnGatheringState: func(st peer.GatheringState) {
			s.bus.Push(event.Event{Kind: event.GatheringStateChanged, Data: st.String()})
		},
		OnChannelOpen: func(ch peer.DataChannel) {
			s.bus.Push(event.Event{Kind: event.ChannelOpened, Data: ch.Label(), Channel: ch})
		},
		OnChannelClose: func(label string) {
			s.bus.Push(event.Event{Kind: event.ChannelClosed, Data: label})
		},
		OnMessage: s.opts.OnMessage,
	}
}

// HandleSignal is the pub/sub handler for inbound signaling. Malformed
// payloads are dropped.
func (s *Session) HandleSignal(topic string, payload []byte) {
	msg, err := signaling.DecodeLimit(payload, s.cfg.MaxPayload)
	if err != nil {
		s.log.Warning("dropping signaling message on %s: %v", topic, err)
		return
	}

	source := msg.DeviceID
	if source == "" {
		source = signaling.DeviceFromTopic(topic)
	}
	if msg.DeviceID != "" && msg.DeviceID == s.cfg.DeviceID {
		return
	}

	first := msg.First()
	if first.Description != "" {
		s.bus.Push(event.Event{Kind: event.RemoteDescriptionReceived, Data: first.Description, Source: source})
	}
	if len(first.Candidates) > 0 {
		s.bus.Push(event.Event{
			Kind:   event.RemoteCandidateReceived,
			Data:   first.Candidates[0],
			Batch:  first.Candidates,
			Source: source,
		})
	}
}

// ---------------------------------------------------------------------------
// Consumer
// ---------------------------------------------------------------------------

// handle applies one event. A returned error ends the session.
func (s *Session) handle(ctx context.Context, ev event.Event) error {
	switch ev.Kind {
	case event.LocalDescriptionProduced:
		s.pending.First().Description = ev.Data

	case event.LocalCandidateProduced:
		first := s.pending.First()
		first.Candidates = append(first.Candidates, ev.Data)

	case event.GatheringStateChanged:
		st, _ := peer.ParseGatheringState(ev.Data)
		s.updateStatus(func(status *Status) { status.Gathering = st.String() })
		s.log.Debug("gathering state: %s", st)
		if st == peer.GatheringComplete {
			s.flush(ctx)
		}

	case event.ConnectionStateChanged:
		st, _ := peer.ParseConnectionState(ev.Data)
		return s.onConnectionState(st)

	case event.RemoteDescriptionReceived:
		if !s.acceptPeer(ev.Source) {
			return nil
		}
		if s.engine == nil {
			return fmt.Errorf("apply remote description: %w", ErrEngineUnavailable)
		}
		if err := s.engine.ApplyRemoteDescription(ev.Data); err != nil {
			s.log.Error("failed to apply remote description: %v", err)
			return nil
		}
		s.log.Info("applied remote description from %s", ev.Source)

	case event.RemoteCandidateReceived:
		if !s.acceptPeer(ev.Source) {
			return nil
		}
		return s.applyCandidates(ev.Batch)

	case event.ChannelRequested:
		if s.engine == nil {
			return fmt.Errorf("open channel %q: %w", ev.Data, ErrEngineUnavailable)
		}
		if err := s.engine.OpenChannel(ev.Data); err != nil {
			return fmt.Errorf("open channel %q: %w: %v", ev.Data, ErrEngineUnavailable, err)
		}

	case event.ChannelOpened:
		s.channels[ev.Data] = ev.Channel
		s.updateStatus(func(status *Status) { status.Channels = len(s.channels) })
		s.log.Info("data channel %q open", ev.Data)
		if s.connected {
			s.greet()
		}
		if s.opts.Streamer != nil && ev.Data == s.cfg.ChannelLabel {
			s.opts.Streamer.Attach(ev.Channel)
		}

	case event.ChannelClosed:
		if _, ok := s.channels[ev.Data]; !ok {
			return nil
		}
		delete(s.channels, ev.Data)
		s.updateStatus(func(status *Status) { status.Channels = len(s.channels) })
		s.log.Info("data channel %q closed", ev.Data)
		if s.opts.Streamer != nil {
			s.opts.Streamer.Detach(ev.Data)
		}

	case event.Error:
		s.log.Error("%s", ev.Data)

	default:
		s.log.Warning("ignoring event of unknown kind %d", ev.Kind)
	}

	return nil
}

// acceptPeer pins the session to the first remote device it hears from.
func (s *Session) acceptPeer(source string) bool {
	if source == "" {
		return true
	}
	if s.peerID == "" {
		s.peerID = source
		s.updateStatus(func(status *Status) { status.PeerID = source })
		return true
	}
	if source != s.peerID {
		s.log.Debug("ignoring signaling from %s, session is bound to %s", source, s.peerID)
		return false
	}
	return true
}

func (s *Session) applyCandidates(batch []string) error {
	selected, ok := ice.Select(batch)
	if !ok {
		s.log.Debug("no usable candidate among %d received", len(batch))
		return nil
	}
	if s.engine == nil {
		return fmt.Errorf("apply remote candidate: %w", ErrEngineUnavailable)
	}
	if err := s.engine.AddRemoteCandidate(selected); err != nil {
		s.log.Error("failed to apply remote candidate: %v", err)
		return nil
	}
	s.log.Debug("applied remote candidate %s", selected)
	return nil
}

func (s *Session) onConnectionState(st peer.ConnectionState) error {
	s.updateStatus(func(status *Status) { status.Connection = st.String() })
	s.log.Info("peer connection state: %s", st)

	switch st {
	case peer.ConnectionConnected:
		s.connected = true
		if s.timer != nil {
			s.timer.Stop()
		}
		s.greet()
		return s.startStream()

	case peer.ConnectionDisconnected:
		s.log.Warning("peer connection interrupted, waiting for recovery")

	case peer.ConnectionFailed:
		s.stopStream()
		return ErrConnectionFailed

	case peer.ConnectionClosed:
		s.stopStream()
		return errPeerClosed
	}
	return nil
}

// sessionChannel returns the channel carrying the session label, or the
// first open channel when the remote chose another label.
func (s *Session) sessionChannel() peer.DataChannel {
	if ch, ok := s.channels[s.cfg.ChannelLabel]; ok {
		return ch
	}
	labels := make([]string, 0, len(s.channels))
	for label := range s.channels {
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return nil
	}
	sort.Strings(labels)
	return s.channels[labels[0]]
}

// greet sends the greeting once per session, as soon as a channel exists.
func (s *Session) greet() {
	if s.greeted || s.cfg.Greeting == "" {
		return
	}
	ch := s.sessionChannel()
	if ch == nil {
		return
	}
	if err := ch.SendText(s.cfg.Greeting); err != nil {
		s.log.Warning("failed to send greeting on %q: %v", ch.Label(), err)
		return
	}
	s.greeted = true
}

func (s *Session) startStream() error {
	if s.opts.Streamer == nil || s.streaming {
		return nil
	}
	if err := s.opts.Streamer.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	s.streaming = true
	s.updateStatus(func(status *Status) { status.Streaming = true })
	return nil
}

func (s *Session) stopStream() {
	if s.opts.Streamer == nil || !s.streaming {
		return
	}
	if err := s.opts.Streamer.Stop(); err != nil {
		s.log.Warning("failed to stop stream: %v", err)
	}
	s.streaming = false
	s.updateStatus(func(status *Status) { status.Streaming = false })
}

// ---------------------------------------------------------------------------
// Outbound signaling
// ---------------------------------------------------------------------------

// publishTopic returns where this side's signaling goes. The viewer answers
// on the camera's topic and so needs the peer id first.
func (s *Session) publishTopic() (string, bool) {
	if s.cfg.Role == config.RoleCamera {
		return signaling.PublishTopic(s.cfg.Role, s.cfg.DeviceID), true
	}
	id := s.peerID
	if id == "" {
		id = s.cfg.PeerDeviceID
	}
	if id == "" {
		return "", false
	}
	return signaling.PublishTopic(s.cfg.Role, id), true
}

// flush publishes the accumulated description and candidates as one message
// and clears the accumulator whether or not the publish succeeds.
func (s *Session) flush(ctx context.Context) {
	defer s.pending.Reset()

	if s.pending.Empty() {
		s.log.Debug("gathering complete with nothing to publish")
		return
	}

	topic, ok := s.publishTopic()
	if !ok {
		s.log.Error("no remote device known, discarding local signaling")
		util.Stats.AddPublishFailure()
		return
	}

	payload, err := signaling.EncodeLimit(s.pending, s.cfg.MaxPayload)
	if err != nil {
		s.log.Error("failed to encode signaling message: %v", err)
		util.Stats.AddPublishFailure()
		return
	}

	pctx := ctx
	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	if err := s.broker.Publish(pctx, topic, payload); err != nil {
		s.log.Error("failed to publish signaling to %s: %v", topic, err)
		util.Stats.AddPublishFailure()
		return
	}
	util.Stats.AddPublished()
	s.log.Info("published %d candidate(s) to %s (%d bytes)", len(s.pending.First().Candidates), topic, len(payload))
}
