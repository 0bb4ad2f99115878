//go:build !linux

package v4l2

import (
	"context"

	"github.com/1ureka/camlink/internal/media"
)

// Source is unavailable on this platform; Open always fails.
type Source struct{ cfg Config }

var _ media.Source = (*Source)(nil)

func New(cfg Config) *Source { return &Source{cfg: cfg} }

func (s *Source) Open() ([]media.StreamInfo, error) { return nil, ErrUnsupported }

func (s *Source) ReadPacket(context.Context) (*media.Packet, error) { return nil, ErrNotOpen }

func (s *Source) Close() error { return nil }
