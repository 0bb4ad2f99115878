package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/live"
	"github.com/1ureka/camlink/internal/media"
	"github.com/1ureka/camlink/internal/media/ts"
	"github.com/1ureka/camlink/internal/session"
	"github.com/1ureka/camlink/internal/util"
)

// RunViewer orchestrates the viewer lifecycle:
//  1. Connect to the signaling broker
//  2. Wait for a camera offer and answer it
//  3. Reassemble the live stream, recording it when configured
//  4. Return once the session ends
func RunViewer(ctx context.Context, cfg config.Config) error {
	resolveDeviceID(&cfg)

	broker, err := connectBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	recv, err := newReceiver(cfg.Media)
	if err != nil {
		return err
	}
	st := newStatus(cfg)

	// The session is the only goroutine that ends on its own; the rest
	// follow it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return recv.Run(gctx) })
	if st != nil {
		g.Go(func() error { return st.Run(gctx) })
	}
	g.Go(func() error { return util.RunStatsReporter(gctx) })

	g.Go(func() error {
		defer cancel()

		sess := session.New(session.ConfigFrom(cfg), broker, newEngineFactory(cfg.Peer), session.Options{
			OnMessage: recv.OnMessage,
		})
		setSession(st, sess)

		target := cfg.PeerDeviceID
		if target == "" {
			target = "any camera"
		}
		util.LogInfo("session %s: viewer %s waiting for %s", sess.ID(), cfg.DeviceID, target)

		if err := sess.Run(gctx); err != nil {
			return err
		}
		util.LogInfo("session %s ended after %d units", sess.ID(), recv.Units())
		return nil
	})

	return g.Wait()
}

// newReceiver builds the live receiver with its optional recorder.
func newReceiver(cfg config.Media) (*live.Receiver, error) {
	var sink media.Sink
	if cfg.ReceivedPath != "" {
		w, err := ts.Create(cfg.ReceivedPath)
		if err != nil {
			return nil, err
		}
		util.LogInfo("recording received stream to %s", cfg.ReceivedPath)
		sink = w
	}
	return live.NewReceiver(sink), nil
}
