package webrtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camlink/internal/peer"
)

const (
	HighWaterMark = 1024 * 1024 // pause sending when bufferedAmount exceeds this
	LowWaterMark  = 256 * 1024  // resume sending when bufferedAmount drops below this
)

// Channel wraps a pion DataChannel with buffered-amount backpressure.
type Channel struct {
	raw       *webrtc.DataChannel
	sendReady chan struct{}
}

// Compile-time interface check.
var _ peer.DataChannel = (*Channel)(nil)

func newChannel(raw *webrtc.DataChannel) *Channel {
	ch := &Channel{
		raw:       raw,
		sendReady: make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case ch.sendReady <- struct{}{}:
		default:
		}
	})

	return ch
}

func (c *Channel) Label() string { return c.raw.Label() }

// Send blocks while the channel is above HighWaterMark, until the buffer
// drains below LowWaterMark or ctx is cancelled.
func (c *Channel) Send(ctx context.Context, data []byte) error {
	for c.raw.BufferedAmount() > uint64(HighWaterMark) {
		select {
		case <-c.sendReady:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.raw.Send(data)
}

func (c *Channel) SendText(text string) error { return c.raw.SendText(text) }
func (c *Channel) Close() error               { return c.raw.Close() }
