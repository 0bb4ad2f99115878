// Package mjpeg implements the transcode stages for Motion-JPEG: decode to
// an image, scale and convert it to 4:2:0, and re-encode at a fixed quality.
package mjpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/1ureka/camlink/internal/media"
)

// Decoder decodes JPEG packets.
type Decoder struct{}

var _ media.Decoder = Decoder{}

func (Decoder) Decode(p *media.Packet) (*media.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	return &media.Frame{Image: img, PTS: p.PTS}, nil
}

// ---------------------------------------------------------------------------
// Converter
// ---------------------------------------------------------------------------

// Converter scales frames to a fixed geometry and converts them to YCbCr
// 4:2:0. A zero width or height keeps the input geometry.
type Converter struct {
	Width  int
	Height int

	scratch *image.RGBA
}

var _ media.Converter = (*Converter)(nil)

// NewConverter returns a converter producing width x height frames.
func NewConverter(width, height int) *Converter {
	return &Converter{Width: width, Height: height}
}

func (c *Converter) Convert(f *media.Frame) (*media.Frame, error) {
	src := f.Image
	sb := src.Bounds()
	w, h := c.Width, c.Height
	if w <= 0 || h <= 0 {
		w, h = sb.Dx(), sb.Dy()
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty frame")
	}

	if ycc, ok := src.(*image.YCbCr); ok && sb.Dx() == w && sb.Dy() == h &&
		ycc.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		return f, nil
	}

	if c.scratch == nil || c.scratch.Bounds().Dx() != w || c.scratch.Bounds().Dy() != h {
		c.scratch = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.BiLinear.Scale(c.scratch, c.scratch.Bounds(), src, sb, draw.Src, nil)

	return &media.Frame{Image: toYCbCr420(c.scratch), PTS: f.PTS}, nil
}

// toYCbCr420 converts an RGBA image, taking chroma from the top-left pixel
// of each 2x2 block.
func toYCbCr420(src *image.RGBA) *image.YCbCr {
	b := src.Bounds()
	dst := image.NewYCbCr(b, image.YCbCrSubsampleRatio420)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := src.PixOffset(x, y)
			r, g, bl := src.Pix[i], src.Pix[i+1], src.Pix[i+2]
			yy, cb, cr := color.RGBToYCbCr(r, g, bl)
			dst.Y[dst.YOffset(x, y)] = yy
			if (x-b.Min.X)%2 == 0 && (y-b.Min.Y)%2 == 0 {
				ci := dst.COffset(x, y)
				dst.Cb[ci] = cb
				dst.Cr[ci] = cr
			}
		}
	}
	return dst
}

// ---------------------------------------------------------------------------
// Encoder
// ---------------------------------------------------------------------------

// Encoder produces one intra-coded JPEG unit per frame. Its time base is one
// tick per frame at the configured rate.
type Encoder struct {
	quality  int
	timeBase media.Rational
	buf      bytes.Buffer
}

var _ media.Encoder = (*Encoder)(nil)

// NewEncoder returns an encoder for fps frames per second at quality 1-100.
func NewEncoder(quality, fps int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	if fps <= 0 {
		fps = 30
	}
	return &Encoder{quality: quality, timeBase: media.Rational{Num: 1, Den: int64(fps)}}
}

func (e *Encoder) TimeBase() media.Rational { return e.timeBase }

func (e *Encoder) Encode(f *media.Frame) ([]*media.Packet, error) {
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, f.Image, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	p := media.NewPacket(e.buf.Bytes())
	p.PTS = f.PTS
	p.DTS = f.PTS
	p.Keyframe = true
	return []*media.Packet{p}, nil
}

func (e *Encoder) Close() error { return nil }
