//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackjack/webcam"

	"github.com/1ureka/camlink/internal/media"
	"github.com/1ureka/camlink/internal/util"
)

// waitTimeout is how long one WaitForFrame call blocks, in seconds, before
// the read loop checks its context again.
const waitTimeout = 1

// Source reads MJPEG frames from a webcam. Timestamps are microseconds
// since Open.
type Source struct {
	cfg   Config
	cam   *webcam.Webcam
	start time.Time
	log   util.Scope
}

var _ media.Source = (*Source)(nil)

// New returns a closed source for cfg.
func New(cfg Config) *Source {
	return &Source{cfg: cfg, log: util.Scope("v4l2")}
}

func (s *Source) Open() ([]media.StreamInfo, error) {
	cam, err := webcam.Open(s.cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.cfg.Device, err)
	}

	format, ok := findMJPEG(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return nil, fmt.Errorf("%s: %w", s.cfg.Device, ErrNoMJPEG)
	}

	_, w, h, err := cam.SetImageFormat(format, uint32(s.cfg.Width), uint32(s.cfg.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("set format %dx%d: %w", s.cfg.Width, s.cfg.Height, err)
	}
	if uint32(s.cfg.Width) != w || uint32(s.cfg.Height) != h {
		s.log.Warning("device negotiated %dx%d instead of %dx%d", w, h, s.cfg.Width, s.cfg.Height)
	}

	if err := cam.SetFramerate(float32(s.cfg.FPS)); err != nil {
		s.log.Warning("device ignored frame rate %d: %v", s.cfg.FPS, err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("start streaming: %w", err)
	}

	s.cam = cam
	s.start = time.Now()

	return []media.StreamInfo{{
		Index:    0,
		Kind:     media.StreamVideo,
		Codec:    "mjpeg",
		Width:    int(w),
		Height:   int(h),
		FPS:      s.cfg.FPS,
		TimeBase: media.Microseconds,
	}}, nil
}

// ReadPacket waits for the next frame and copies it out of the driver's
// buffer.
func (s *Source) ReadPacket(ctx context.Context) (*media.Packet, error) {
	if s.cam == nil {
		return nil, ErrNotOpen
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.cam.WaitForFrame(waitTimeout)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("wait for frame: %w", err)
		}

		frame, index, err := s.cam.GetFrame()
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if len(frame) == 0 {
			s.cam.ReleaseFrame(index)
			continue
		}

		p := media.NewPacket(frame)
		s.cam.ReleaseFrame(index)

		p.PTS = time.Since(s.start).Microseconds()
		p.DTS = p.PTS
		p.Keyframe = true
		return p, nil
	}
}

func (s *Source) Close() error {
	if s.cam == nil {
		return nil
	}
	err := s.cam.Close()
	s.cam = nil
	return err
}

func findMJPEG(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	for f, desc := range formats {
		if uint32(f) == pixelFormatMJPEG {
			return f, true
		}
		d := strings.ToUpper(desc)
		if strings.Contains(d, "MJPEG") || strings.Contains(d, "MOTION-JPEG") {
			return f, true
		}
	}
	return 0, false
}
