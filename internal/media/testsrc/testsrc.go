// Package testsrc is a synthetic Motion-JPEG source: a box circling over
// color bars, paced at the configured frame rate.
package testsrc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"time"

	"github.com/1ureka/camlink/internal/media"
)

// ErrNotOpen is returned by ReadPacket before Open.
var ErrNotOpen = errors.New("test source not open")

// Config configures a Source. Frames limits the stream length; zero means
// endless.
type Config struct {
	Width  int
	Height int
	FPS    int
	Frames int
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBars = []color.RGBA{
	{192, 192, 192, 255}, // White (75%)
	{192, 192, 0, 255},   // Yellow
	{0, 192, 192, 255},   // Cyan
	{0, 192, 0, 255},     // Green
	{192, 0, 192, 255},   // Magenta
	{192, 0, 0, 255},     // Red
	{0, 0, 192, 255},     // Blue
	{16, 16, 16, 255},    // Black
}

// Source generates JPEG packets with frame-index timestamps.
type Source struct {
	cfg    Config
	bars   *image.RGBA
	frame  *image.RGBA
	buf    bytes.Buffer
	ticker *time.Ticker
	count  int
}

var _ media.Source = (*Source)(nil)

// New applies defaults and returns a closed source.
func New(cfg Config) *Source {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 360
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &Source{cfg: cfg}
}

func (s *Source) Open() ([]media.StreamInfo, error) {
	w, h := s.cfg.Width, s.cfg.Height
	s.bars = image.NewRGBA(image.Rect(0, 0, w, h))
	barWidth := max(w/len(colorBars), 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s.bars.SetRGBA(x, y, colorBars[min(x/barWidth, len(colorBars)-1)])
		}
	}
	s.frame = image.NewRGBA(s.bars.Bounds())
	s.ticker = time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	s.count = 0

	return []media.StreamInfo{{
		Index:    0,
		Kind:     media.StreamVideo,
		Codec:    "mjpeg",
		Width:    w,
		Height:   h,
		FPS:      s.cfg.FPS,
		TimeBase: media.Rational{Num: 1, Den: int64(s.cfg.FPS)},
	}}, nil
}

// ReadPacket waits for the next frame tick and returns the rendered frame.
func (s *Source) ReadPacket(ctx context.Context) (*media.Packet, error) {
	if s.ticker == nil {
		return nil, ErrNotOpen
	}
	if s.cfg.Frames > 0 && s.count >= s.cfg.Frames {
		return nil, io.EOF
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}

	s.render(s.count)
	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, s.frame, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}

	p := media.NewPacket(s.buf.Bytes())
	p.PTS = int64(s.count)
	p.DTS = p.PTS
	p.Keyframe = true
	s.count++
	return p, nil
}

func (s *Source) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	return nil
}

// render draws the bars with a white box moving on a circle.
func (s *Source) render(n int) {
	copy(s.frame.Pix, s.bars.Pix)

	w, h := s.cfg.Width, s.cfg.Height
	box := max(min(w, h)/6, 2)
	radius := float64(min(w, h)) / 4
	angle := float64(n) * 0.05 // Radians per frame
	bx := w/2 + int(radius*math.Cos(angle)) - box/2
	by := h/2 + int(radius*math.Sin(angle)) - box/2

	white := color.RGBA{235, 235, 235, 255}
	for y := max(by, 0); y < min(by+box, h); y++ {
		for x := max(bx, 0); x < min(bx+box, w); x++ {
			s.frame.SetRGBA(x, y, white)
		}
	}
}
