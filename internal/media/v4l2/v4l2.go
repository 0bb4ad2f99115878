// Package v4l2 captures Motion-JPEG frames from a Video4Linux2 device.
package v4l2

import "errors"

var (
	ErrUnsupported   = errors.New("v4l2 capture is only available on linux")
	ErrNoMJPEG       = errors.New("device does not offer Motion-JPEG")
	ErrNotOpen       = errors.New("device not open")
	pixelFormatMJPEG = fourcc('M', 'J', 'P', 'G')
)

// Config selects the device and the capture geometry.
type Config struct {
	Device string
	Width  int
	Height int
	FPS    int
}

func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}
