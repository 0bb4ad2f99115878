package mjpeg

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/1ureka/camlink/internal/media"
)

func jpegPacket(t *testing.T, w, h int) *media.Packet {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}
	p := media.NewPacket(buf.Bytes())
	p.PTS = 42
	return p
}

func TestTranscodeChain(t *testing.T) {
	testCases := []struct {
		name         string
		inW, inH     int
		outW, outH   int
		wantW, wantH int
	}{
		{"keep geometry", 64, 36, 0, 0, 64, 36},
		{"downscale", 64, 36, 32, 18, 32, 18},
		{"upscale", 32, 18, 64, 36, 64, 36},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pkt := jpegPacket(t, tc.inW, tc.inH)
			defer pkt.Release()

			frame, err := Decoder{}.Decode(pkt)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if frame.PTS != 42 {
				t.Errorf("frame PTS = %d, want 42", frame.PTS)
			}

			frame, err = NewConverter(tc.outW, tc.outH).Convert(frame)
			if err != nil {
				t.Fatalf("Convert failed: %v", err)
			}
			b := frame.Image.Bounds()
			if b.Dx() != tc.wantW || b.Dy() != tc.wantH {
				t.Errorf("converted size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tc.wantW, tc.wantH)
			}
			if ycc, ok := frame.Image.(*image.YCbCr); !ok || ycc.SubsampleRatio != image.YCbCrSubsampleRatio420 {
				t.Errorf("converted frame is %T, want 4:2:0 YCbCr", frame.Image)
			}

			units, err := NewEncoder(80, 30).Encode(frame)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(units) != 1 || !units[0].Keyframe || units[0].PTS != 42 || units[0].DTS != 42 {
				t.Fatalf("unexpected units: %+v", units)
			}
			defer units[0].Release()

			cfg, err := jpeg.DecodeConfig(bytes.NewReader(units[0].Data))
			if err != nil {
				t.Fatalf("encoded unit is not a JPEG: %v", err)
			}
			if cfg.Width != tc.wantW || cfg.Height != tc.wantH {
				t.Errorf("encoded size = %dx%d, want %dx%d", cfg.Width, cfg.Height, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	p := media.NewPacket([]byte("not a jpeg"))
	defer p.Release()
	if _, err := (Decoder{}).Decode(p); err == nil {
		t.Error("expected an error for a non-JPEG packet")
	}
}

func TestEncoderTimeBase(t *testing.T) {
	if tb := NewEncoder(75, 25).TimeBase(); tb != (media.Rational{Num: 1, Den: 25}) {
		t.Errorf("TimeBase() = %+v, want 1/25", tb)
	}
	if tb := NewEncoder(0, 0).TimeBase(); tb.Den != 30 {
		t.Errorf("default TimeBase() = %+v, want 1/30", tb)
	}
}
