package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/util"
)

// WSBroker is a Broker that talks to a Relay over a WebSocket.
type WSBroker struct {
	cfg config.Signaling

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	nextID uint64
	subs   []wsSub

	done chan struct{}
	once sync.Once
}

type wsSub struct {
	id     uint64
	filter string
	h      Handler
}

// Compile-time interface check.
var _ Broker = (*WSBroker)(nil)

// NewWS creates a client for cfg.URL (e.g. ws://127.0.0.1:8090/ws).
func NewWS(cfg config.Signaling) *WSBroker {
	return &WSBroker{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Connect dials the relay and starts the read loop.
func (b *WSBroker) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to relay %s: %w", b.cfg.URL, err)
	}

	b.writeMu.Lock()
	b.conn = conn
	b.writeMu.Unlock()

	go b.readLoop(conn)
	return nil
}

func (b *WSBroker) readLoop(conn *websocket.Conn) {
	defer b.once.Do(func() { close(b.done) })

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-b.done:
			default:
				util.LogDebug("relay read ended: %v", err)
			}
			return
		}
		if f.Op != opMessage {
			continue
		}

		b.mu.Lock()
		subs := append([]wsSub(nil), b.subs...)
		b.mu.Unlock()

		for _, s := range subs {
			if Match(s.filter, f.Topic) {
				s.h(f.Topic, f.Payload)
			}
		}
	}
}

func (b *WSBroker) write(ctx context.Context, f frame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if b.conn == nil {
		return ErrNotConnected
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(b.cfg.PublishTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	b.conn.SetWriteDeadline(deadline)
	return b.conn.WriteJSON(f)
}

func (b *WSBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, wsSub{id: id, filter: topic, h: h})
	b.mu.Unlock()

	// The relay keeps forwarding the topic; the handler is dropped locally.
	context.AfterFunc(ctx, func() { b.unsubscribe(id) })

	if err := b.write(ctx, frame{Op: opSubscribe, Topic: topic}); err != nil {
		b.unsubscribe(id)
		return fmt.Errorf("relay subscribe %s: %w", topic, err)
	}
	return nil
}

func (b *WSBroker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *WSBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.write(ctx, frame{Op: opPublish, Topic: topic, Payload: payload}); err != nil {
		return fmt.Errorf("relay publish %s: %w", topic, err)
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (b *WSBroker) Close() error {
	b.writeMu.Lock()
	conn := b.conn
	b.writeMu.Unlock()
	if conn == nil {
		return nil
	}

	b.once.Do(func() { close(b.done) })

	b.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	b.writeMu.Unlock()

	if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}
