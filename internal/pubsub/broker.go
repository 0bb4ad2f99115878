// Package pubsub carries signaling messages between peers before a direct
// connection exists. Every backend offers the same MQTT-style topic model:
// '/' separated levels, '+' matching one level and a trailing '#' matching
// the rest.
package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/camlink/internal/config"
)

var (
	ErrNotConnected = errors.New("broker not connected")
	ErrClosed       = errors.New("broker closed")
)

// Handler receives one message. It runs on a broker goroutine and must not
// block.
type Handler func(topic string, payload []byte)

// Broker is a pub/sub client.
type Broker interface {
	// Connect blocks until the broker accepts the connection, ctx is done or
	// the configured connect timeout elapses.
	Connect(ctx context.Context) error
	// Subscribe registers h for topic. The subscription lasts until ctx
	// ends or the broker is closed.
	Subscribe(ctx context.Context, topic string, h Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// New builds the broker client selected by cfg.Backend.
func New(cfg config.Signaling, clientID string) (Broker, error) {
	switch cfg.Backend {
	case config.BackendMQTT:
		return NewMQTT(cfg, clientID), nil
	case config.BackendRedis:
		return NewRedis(cfg)
	case config.BackendWS:
		return NewWS(cfg), nil
	default:
		return nil, fmt.Errorf("unknown signaling backend %q", cfg.Backend)
	}
}
