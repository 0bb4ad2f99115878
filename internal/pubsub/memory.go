package pubsub

import (
	"context"
	"sync"
)

// Publication is one message seen by a Memory hub.
type Publication struct {
	Topic   string
	Payload []byte
}

// Memory is an in-process hub. Clients created from the same hub see each
// other's messages; delivery happens synchronously inside Publish.
type Memory struct {
	mu        sync.Mutex
	nextID    uint64
	subs      []memorySub
	published []Publication
}

type memorySub struct {
	id     uint64
	client *MemoryClient
	filter string
	h      Handler
}

// NewMemory creates an empty hub.
func NewMemory() *Memory {
	return &Memory{}
}

// Client returns a new Broker attached to the hub.
func (m *Memory) Client() *MemoryClient {
	return &MemoryClient{hub: m}
}

// Published returns a copy of every message published so far.
func (m *Memory) Published() []Publication {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Publication(nil), m.published...)
}

// PublishedTo returns the messages published on exactly topic.
func (m *Memory) PublishedTo(topic string) []Publication {
	var out []Publication
	for _, p := range m.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// MemoryClient is one connection to a Memory hub.
type MemoryClient struct {
	hub *Memory

	mu        sync.Mutex
	connected bool
	closed    bool

	// FailPublish, when set, is returned by every Publish.
	FailPublish error
}

// Compile-time interface check.
var _ Broker = (*MemoryClient)(nil)

func (c *MemoryClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.connected = true
	return nil
}

func (c *MemoryClient) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.connected:
		return ErrNotConnected
	}
	return nil
}

func (c *MemoryClient) Subscribe(ctx context.Context, topic string, h Handler) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.hub.mu.Lock()
	c.hub.nextID++
	id := c.hub.nextID
	c.hub.subs = append(c.hub.subs, memorySub{id: id, client: c, filter: topic, h: h})
	c.hub.mu.Unlock()

	context.AfterFunc(ctx, func() {
		c.hub.remove(func(s memorySub) bool { return s.id == id })
	})
	return nil
}

func (c *MemoryClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.FailPublish != nil {
		return c.FailPublish
	}

	data := append([]byte(nil), payload...)

	c.hub.mu.Lock()
	c.hub.published = append(c.hub.published, Publication{Topic: topic, Payload: data})
	var targets []Handler
	for _, s := range c.hub.subs {
		if Match(s.filter, topic) {
			targets = append(targets, s.h)
		}
	}
	c.hub.mu.Unlock()

	for _, h := range targets {
		h(topic, data)
	}
	return nil
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.hub.remove(func(s memorySub) bool { return s.client == c })
	return nil
}

func (m *Memory) remove(drop func(memorySub) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.subs[:0]
	for _, s := range m.subs {
		if !drop(s) {
			kept = append(kept, s)
		}
	}
	m.subs = kept
}

// Subscribers returns the number of live subscriptions on the hub.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
