package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/live"
	"github.com/1ureka/camlink/internal/media"
	"github.com/1ureka/camlink/internal/media/mjpeg"
	"github.com/1ureka/camlink/internal/media/testsrc"
	"github.com/1ureka/camlink/internal/media/ts"
	"github.com/1ureka/camlink/internal/media/v4l2"
	"github.com/1ureka/camlink/internal/peer"
	"github.com/1ureka/camlink/internal/session"
	"github.com/1ureka/camlink/internal/status"
	"github.com/1ureka/camlink/internal/util"
)

// TestDevice selects the built-in pattern generator instead of a V4L2 device.
const TestDevice = "test"

// RunCamera orchestrates the camera lifecycle:
//  1. Connect to the signaling broker
//  2. Offer a session on camera topics and wait for a viewer
//  3. Start the media pipeline once the peer is connected
//  4. Serve the next viewer when the session ends, until ctx is done
//
// A capture failure ends the session it belongs to; the device is opened
// again for the next one.
func RunCamera(ctx context.Context, cfg config.Config) error {
	resolveDeviceID(&cfg)

	broker, err := connectBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	var sender *live.Sender
	if cfg.Media.Live {
		sender = live.NewSender(cfg.Media.ChunkSize)
	}
	cam := newCamera(cfg.Media, sender)
	st := newStatus(cfg)

	g, gctx := errgroup.WithContext(ctx)

	if sender != nil {
		g.Go(func() error { return sender.Run(gctx) })
	}
	if st != nil {
		g.Go(func() error { return st.Run(gctx) })
	}
	g.Go(func() error { return cam.watch(gctx) })
	g.Go(func() error { return util.RunStatsReporter(gctx) })

	g.Go(func() error {
		factory := newEngineFactory(cfg.Peer)
		for {
			sess := session.New(session.ConfigFrom(cfg), broker, factory, session.Options{Streamer: cam})
			setSession(st, sess)
			util.LogInfo("session %s: camera %s waiting for a viewer", sess.ID(), cfg.DeviceID)

			sctx, abort := context.WithCancel(gctx)
			cam.setAbort(abort)
			err := sess.Run(sctx)
			abort()

			switch {
			case gctx.Err() != nil:
				return nil
			case errors.Is(err, session.ErrEngineUnavailable):
				return err
			case err != nil:
				util.LogWarning("session %s ended: %v", sess.ID(), err)
			default:
				util.LogInfo("session %s ended", sess.ID())
			}

			select {
			case <-gctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
		}
	})

	return g.Wait()
}

func setSession(st *status.Server, sess *session.Session) {
	if st != nil {
		st.SetSession(sess)
	}
}

// ---------------------------------------------------------------------------
// Streamer
// ---------------------------------------------------------------------------

// camera is the session.Streamer of the camera role. Each Start builds a
// fresh chain of stages on the same pipeline and records to its own file.
type camera struct {
	cfg      config.Media
	sender   *live.Sender
	pipeline *media.Pipeline
	log      util.Scope

	mu    sync.Mutex
	runs  int
	abort context.CancelFunc
}

// Compile-time interface check.
var _ session.Streamer = (*camera)(nil)

func newCamera(cfg config.Media, sender *live.Sender) *camera {
	return &camera{
		cfg:      cfg,
		sender:   sender,
		pipeline: media.NewPipeline(),
		log:      util.Scope("camera"),
	}
}

func (c *camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	policy, err := media.ParseQueuePolicy(c.cfg.QueuePolicy)
	if err != nil {
		return err
	}

	sink := media.NewFanout()
	if c.cfg.Record {
		path := recordPath(c.cfg.RecordPath, c.runs)
		w, err := ts.Create(path)
		if err != nil {
			return err
		}
		sink.Add("recorder", w)
		c.log.Info("recording to %s", path)
	}
	if c.sender != nil {
		sink.Add("live", c.sender)
	}
	c.runs++

	err = c.pipeline.Configure(media.Config{
		Source:    c.source(),
		Decoder:   mjpeg.Decoder{},
		Converter: mjpeg.NewConverter(c.cfg.OutWidth, c.cfg.OutHeight),
		Encoder:   mjpeg.NewEncoder(c.cfg.Quality, c.cfg.FPS),
		Sink:      sink,
		QueueSize: c.cfg.QueueSize,
		Policy:    policy,
	})
	if err != nil {
		return errors.Join(err, sink.Close())
	}

	if err := c.pipeline.Open(); err != nil {
		// Configured -> Closed does not touch the stages.
		c.pipeline.Stop()
		return errors.Join(fmt.Errorf("open capture %s: %w", c.cfg.Device, err), sink.Close())
	}
	if err := c.pipeline.Start(); err != nil {
		return errors.Join(err, c.pipeline.Stop())
	}

	c.log.Info("streaming %dx%d@%d", c.cfg.OutWidth, c.cfg.OutHeight, c.cfg.FPS)
	return nil
}

func (c *camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pipeline.State() == media.StateClosed {
		return nil
	}
	dropped, failed := c.pipeline.Dropped(), c.pipeline.Failed()
	err := c.pipeline.Stop()
	if failed {
		c.log.Warning("stream stopped after a capture failure (%d packets dropped)", dropped)
	} else {
		c.log.Info("stream stopped (%d packets dropped)", dropped)
	}
	return err
}

func (c *camera) Attach(ch peer.DataChannel) {
	if c.sender != nil {
		c.sender.Attach(ch)
	}
}

func (c *camera) Detach(label string) {
	if c.sender != nil {
		c.sender.Detach(label)
	}
}

func (c *camera) source() media.Source {
	if c.cfg.Device == TestDevice {
		return testsrc.New(testsrc.Config{Width: c.cfg.Width, Height: c.cfg.Height, FPS: c.cfg.FPS})
	}
	return v4l2.New(v4l2.Config{Device: c.cfg.Device, Width: c.cfg.Width, Height: c.cfg.Height, FPS: c.cfg.FPS})
}

// setAbort registers how to end the session the stream belongs to.
func (c *camera) setAbort(abort context.CancelFunc) {
	c.mu.Lock()
	c.abort = abort
	c.mu.Unlock()
}

// watch ends the current session on every fatal pipeline error, so that
// capture is retried with the next viewer. It returns when ctx ends.
func (c *camera) watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.pipeline.Errors():
			util.LogError("media pipeline: %v", err)
			c.mu.Lock()
			abort := c.abort
			c.mu.Unlock()
			if abort != nil {
				abort()
			}
		}
	}
}

// recordPath keeps the configured name for the first run and numbers the
// following ones: output.ts, output-2.ts, output-3.ts...
func recordPath(path string, run int) string {
	if run == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), run+1, ext)
}
