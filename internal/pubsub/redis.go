package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/util"
)

// RedisBroker is a Broker backed by Redis PUBLISH / PSUBSCRIBE.
type RedisBroker struct {
	cfg    config.Signaling
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
	wg   sync.WaitGroup
}

// Compile-time interface check.
var _ Broker = (*RedisBroker)(nil)

// NewRedis creates a client for cfg.URL (e.g. redis://127.0.0.1:6379/0).
func NewRedis(cfg config.Signaling) (*RedisBroker, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Username != "" {
		opt.Username = cfg.Username
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DialTimeout = cfg.ConnectTimeout

	return &RedisBroker{
		cfg:    cfg,
		client: redis.NewClient(opt),
	}, nil
}

// Connect verifies the server is reachable.
func (b *RedisBroker) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connect %s: %w", b.cfg.URL, err)
	}
	return nil
}

// Subscribe starts a pattern subscription. Messages are delivered from a
// dedicated goroutine until ctx ends or Close.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	ps := b.client.PSubscribe(ctx, redisPattern(topic))

	// Wait for the subscription confirmation so no message published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("redis psubscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	context.AfterFunc(ctx, func() {
		if b.forget(ps) {
			ps.Close()
		}
	})

	ch := ps.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ch {
			if !Match(topic, msg.Channel) {
				continue
			}
			h(msg.Channel, []byte(msg.Payload))
		}
	}()

	return nil
}

// forget removes ps from the subscriptions Close will end, reporting whether
// it was still there.
func (b *RedisBroker) forget(ps *redis.PubSub) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == ps {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Close ends every subscription, waits for their goroutines and closes the
// connection pool.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var errs []error
	for _, ps := range subs {
		errs = append(errs, ps.Close())
	}
	b.wg.Wait()

	if err := b.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		util.LogDebug("redis close: %v", err)
		return err
	}
	return nil
}
