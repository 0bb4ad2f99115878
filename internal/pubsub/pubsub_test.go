package pubsub

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/camlink/internal/config"
)

func TestMatch(t *testing.T) {
	testCases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"server/live/+", "server/live/cam-1", true},
		{"server/live/+", "server/live/cam-1/extra", false},
		{"server/live/+", "camera/live/cam-1", false},
		{"camera/live/cam-1", "camera/live/cam-1", true},
		{"camera/live/cam-1", "camera/live/cam-2", false},
		{"camera/#", "camera/live/cam-1", true},
		{"camera/#", "camera", true},
		{"camera/#", "cameras", false},
		{"#", "anything/at/all", true},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b", false},
	}

	for _, tc := range testCases {
		t.Run(tc.filter+" "+tc.topic, func(t *testing.T) {
			if got := Match(tc.filter, tc.topic); got != tc.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
			}
		})
	}
}

func TestRedisPattern(t *testing.T) {
	testCases := map[string]string{
		"server/live/+":     "server/live/*",
		"camera/live/aa:bb": "camera/live/aa:bb",
		"camera/#":          "camera/*",
		"odd/na[me]?/+":     `odd/na\[me\]\?/*`,
	}
	for in, want := range testCases {
		if got := redisPattern(in); got != want {
			t.Errorf("redisPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := config.Default().Signaling
	cfg.Backend = "carrier-pigeon"
	if _, err := New(cfg, "id"); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestMemoryDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewMemory()
	cam, viewer := hub.Client(), hub.Client()

	if err := cam.Subscribe(ctx, "camera/live/cam-1", func(string, []byte) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Subscribe before Connect = %v, want ErrNotConnected", err)
	}

	for _, c := range []*MemoryClient{cam, viewer} {
		if err := c.Connect(ctx); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	if err := viewer.Subscribe(ctx, "server/live/+", func(topic string, payload []byte) {
		got = append(got, topic+"="+string(payload))
	}); err != nil {
		t.Fatal(err)
	}

	_ = cam.Publish(ctx, "server/live/cam-1", []byte("offer"))
	_ = cam.Publish(ctx, "camera/live/cam-1", []byte("ignored"))

	if len(got) != 1 || got[0] != "server/live/cam-1=offer" {
		t.Fatalf("viewer received %v", got)
	}
	if n := len(hub.Published()); n != 2 {
		t.Fatalf("hub recorded %d publications, want 2", n)
	}

	viewer.Close()
	_ = cam.Publish(ctx, "server/live/cam-1", []byte("after close"))
	if len(got) != 1 {
		t.Fatalf("closed client still received messages: %v", got)
	}
}

func TestMemorySubscriptionEndsWithContext(t *testing.T) {
	hub := NewMemory()
	c := hub.Client()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got int
	if err := c.Subscribe(ctx, "camera/live/cam-1", func(string, []byte) { got++ }); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe(context.Background(), "camera/live/+", func(string, []byte) {}); err != nil {
		t.Fatal(err)
	}

	_ = c.Publish(context.Background(), "camera/live/cam-1", []byte("a"))
	cancel()

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d after cancel, want 1", hub.Subscribers())
		}
		time.Sleep(time.Millisecond)
	}

	_ = c.Publish(context.Background(), "camera/live/cam-1", []byte("b"))
	if got != 1 {
		t.Fatalf("handler called %d times, want 1", got)
	}
}

func TestRelayRoundTrip(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	cfg := config.Default().Signaling
	cfg.Backend = config.BackendWS
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cam := NewWS(cfg)
	viewer := NewWS(cfg)
	for _, b := range []*WSBroker{cam, viewer} {
		if err := b.Connect(ctx); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer b.Close()
	}

	received := make(chan string, 1)
	if err := viewer.Subscribe(ctx, "server/live/+", func(topic string, payload []byte) {
		select {
		case received <- topic + "=" + string(payload):
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}

	// The subscribe frame and the publish frame travel on different
	// connections; retry until the relay has registered the filter.
	deadline := time.After(3 * time.Second)
	for {
		if err := cam.Publish(ctx, "server/live/cam-1", []byte("offer")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		select {
		case msg := <-received:
			if msg != "server/live/cam-1=offer" {
				t.Fatalf("received %q", msg)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("message never delivered through the relay")
		}
	}
}

func (r *Relay) hasFilter(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		c.mu.Lock()
		found := slices.Contains(c.filters, topic)
		c.mu.Unlock()
		if found {
			return true
		}
	}
	return false
}

func TestRelayRepeatedSubscribe(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	cfg := config.Default().Signaling
	cfg.Backend = config.BackendWS
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cam := NewWS(cfg)
	if err := cam.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer cam.Close()

	// One subscription per session served on the same connection.
	for i := 0; i < 3; i++ {
		sctx, end := context.WithCancel(ctx)
		if err := cam.Subscribe(sctx, "camera/#", func(string, []byte) {}); err != nil {
			t.Fatal(err)
		}
		end()
	}
	if err := cam.Subscribe(ctx, "server/live/cam-1", func(string, []byte) {}); err != nil {
		t.Fatal(err)
	}

	// Frames from one connection are handled in order.
	deadline := time.Now().Add(3 * time.Second)
	for !relay.hasFilter("server/live/cam-1") {
		if time.Now().After(deadline) {
			t.Fatal("relay never registered the last filter")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := relay.Subscriptions(); got != 2 {
		t.Fatalf("relay holds %d filters, want 2", got)
	}
}
