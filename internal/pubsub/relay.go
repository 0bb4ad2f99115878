package pubsub

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/camlink/internal/util"
)

// Frame ops exchanged between WSBroker and Relay.
const (
	opSubscribe = "sub"
	opPublish   = "pub"
	opMessage   = "msg"
)

// frame is the JSON structure exchanged over the relay WebSocket.
type frame struct {
	Op      string `json:"op"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload,omitempty"`
}

const relayWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Relay is a minimal WebSocket pub/sub server for deployments without an
// MQTT or Redis server. Every publish is forwarded to every connection with a
// matching subscription.
type Relay struct {
	listener net.Listener

	mu    sync.Mutex
	conns map[string]*relayConn
}

type relayConn struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	filters []string
}

// NewRelay creates an idle relay.
func NewRelay() *Relay {
	return &Relay{conns: make(map[string]*relayConn)}
}

// Start begins listening on addr ("127.0.0.1:0" for a random port) and
// returns the bound address.
func (r *Relay) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay: %w", err)
	}
	r.listener = listener

	go func() {
		_ = http.Serve(listener, r.Handler())
	}()

	return listener.Addr(), nil
}

// Handler routes /ws to HandleWS.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", r.HandleWS)
	return mux
}

// HandleWS upgrades one client connection and serves it until it closes.
func (r *Relay) HandleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	c := &relayConn{id: uuid.NewString(), conn: conn}
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
	util.LogDebug("relay: client %s connected from %s", c.id[:8], conn.RemoteAddr())

	defer func() {
		r.mu.Lock()
		delete(r.conns, c.id)
		r.mu.Unlock()
		conn.Close()
		util.LogDebug("relay: client %s disconnected", c.id[:8])
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Op {
		case opSubscribe:
			// Sessions served back to back subscribe the same topic again.
			c.mu.Lock()
			if !slices.Contains(c.filters, f.Topic) {
				c.filters = append(c.filters, f.Topic)
			}
			c.mu.Unlock()
		case opPublish:
			r.forward(f.Topic, f.Payload)
		default:
			util.LogDebug("relay: client %s sent unknown op %q", c.id[:8], f.Op)
		}
	}
}

// forward delivers a publish to every matching subscriber.
func (r *Relay) forward(topic string, payload []byte) {
	r.mu.Lock()
	targets := make([]*relayConn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.matches(topic) {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		if err := c.send(frame{Op: opMessage, Topic: topic, Payload: payload}); err != nil {
			util.LogDebug("relay: deliver to %s failed: %v", c.id[:8], err)
		}
	}
}

func (c *relayConn) matches(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.filters {
		if Match(f, topic) {
			return true
		}
	}
	return false
}

func (c *relayConn) send(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout))
	return c.conn.WriteJSON(f)
}

// Subscriptions returns the number of filters held across all clients.
func (r *Relay) Subscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.conns {
		c.mu.Lock()
		n += len(c.filters)
		c.mu.Unlock()
	}
	return n
}

// Clients returns the number of connected clients.
func (r *Relay) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Close shuts down the listener, preventing new connections. Existing
// connections end when their peers disconnect.
func (r *Relay) Close() {
	if r.listener != nil {
		r.listener.Close()
	}
}
