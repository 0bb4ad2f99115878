package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/util"
)

// MQTTBroker is a Broker backed by an MQTT server.
type MQTTBroker struct {
	cfg    config.Signaling
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]*mqttSub // replayed after every reconnect
}

type mqttSub struct{ h Handler }

// Compile-time interface check.
var _ Broker = (*MQTTBroker)(nil)

// NewMQTT creates a client for cfg.URL (e.g. tcp://127.0.0.1:1883). It does
// not connect.
func NewMQTT(cfg config.Signaling, clientID string) *MQTTBroker {
	b := &MQTTBroker{
		cfg:  cfg,
		subs: make(map[string]*mqttSub),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(clientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			util.LogWarning("mqtt connection lost: %v", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	b.client = mqtt.NewClient(opts)
	return b
}

// onConnect restores subscriptions; with a clean session the server forgets
// them on every reconnect.
func (b *MQTTBroker) onConnect(c mqtt.Client) {
	b.mu.Lock()
	subs := make(map[string]Handler, len(b.subs))
	for topic, s := range b.subs {
		subs[topic] = s.h
	}
	b.mu.Unlock()

	for topic, h := range subs {
		tok := c.Subscribe(topic, b.cfg.QoS, wrap(h))
		go func(topic string) {
			if tok.WaitTimeout(b.cfg.ConnectTimeout) && tok.Error() != nil {
				util.LogWarning("mqtt resubscribe %s failed: %v", topic, tok.Error())
			}
		}(topic)
	}
}

func wrap(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

// Connect blocks until the server acknowledges the connection or the
// configured connect timeout elapses.
func (b *MQTTBroker) Connect(ctx context.Context) error {
	if err := wait(ctx, b.client.Connect(), b.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.URL, err)
	}
	return nil
}

func (b *MQTTBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	sub := &mqttSub{h: h}
	b.mu.Lock()
	b.subs[topic] = sub
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.unsubscribe(topic, sub) })

	if err := wait(ctx, b.client.Subscribe(topic, b.cfg.QoS, wrap(h)), b.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

// unsubscribe drops topic unless a later Subscribe replaced sub.
func (b *MQTTBroker) unsubscribe(topic string, sub *mqttSub) {
	b.mu.Lock()
	if b.subs[topic] != sub {
		b.mu.Unlock()
		return
	}
	delete(b.subs, topic)
	b.mu.Unlock()

	if b.client.IsConnected() {
		b.client.Unsubscribe(topic)
	}
}

func (b *MQTTBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(ctx, b.client.Publish(topic, b.cfg.QoS, false, payload), b.cfg.PublishTimeout); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, giving in-flight work a short grace period.
func (b *MQTTBroker) Close() error {
	b.client.Disconnect(250)
	return nil
}

// wait resolves a paho token against ctx and a timeout.
func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
