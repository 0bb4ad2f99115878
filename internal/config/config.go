// Package config holds the runtime configuration types.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Role represents which side of the link this process plays (camera or viewer).
type Role string

const (
	RoleCamera Role = "camera" // offerer, owns the capture device
	RoleViewer Role = "viewer" // answerer, receives the live stream
)

// Peer returns the opposite role.
func (r Role) Peer() Role {
	if r == RoleCamera {
		return RoleViewer
	}
	return RoleCamera
}

// Offerer reports whether this role creates the data channel and the offer.
func (r Role) Offerer() bool { return r == RoleCamera }

// Backend names accepted by Signaling.Backend.
const (
	BackendMQTT  = "mqtt"
	BackendRedis = "redis"
	BackendWS    = "ws"
)

// Queue policies accepted by Media.QueuePolicy.
const (
	QueuePolicyBlock      = "block"
	QueuePolicyDropOldest = "drop-oldest"
)

// Config stores every parameter of a camlink process.
type Config struct {
	Role         Role   `yaml:"role"`
	DeviceID     string `yaml:"device_id"`      // empty: derived from the first hardware address
	PeerDeviceID string `yaml:"peer_device_id"` // viewer: camera to subscribe to, empty for any
	Debug        bool   `yaml:"debug"`

	Signaling Signaling `yaml:"signaling"`
	Peer      Peer      `yaml:"peer"`
	Media     Media     `yaml:"media"`
	Status    Status    `yaml:"status"`
}

// Signaling configures the pub/sub channel used to bootstrap the peer connection.
type Signaling struct {
	Backend        string        `yaml:"backend"`
	URL            string        `yaml:"url"` // tcp://host:1883, redis://host:6379/0, ws://host:8090/ws
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	MaxPayload     int           `yaml:"max_payload"` // bytes per encoded signaling message
}

// Peer configures the WebRTC side.
type Peer struct {
	ICEServers         []string      `yaml:"ice_servers"`
	MaxMessageSize     uint32        `yaml:"max_message_size"`
	ChannelLabel       string        `yaml:"channel_label"`
	Greeting           string        `yaml:"greeting"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
}

// Media configures capture, transcoding and delivery.
type Media struct {
	Device       string `yaml:"device"` // /dev/video0, or "test" for the pattern generator
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	OutWidth     int    `yaml:"out_width"`
	OutHeight    int    `yaml:"out_height"`
	Quality      int    `yaml:"quality"`
	QueueSize    int    `yaml:"queue_size"`
	QueuePolicy  string `yaml:"queue_policy"`
	Record       bool   `yaml:"record"`
	RecordPath   string `yaml:"record_path"`
	Live         bool   `yaml:"live"`
	ChunkSize    int    `yaml:"chunk_size"`
	ReceivedPath string `yaml:"received_path"` // viewer: where reassembled units are recorded, empty to skip
}

// Status configures the HTTP status API.
type Status struct {
	Addr string `yaml:"addr"` // empty disables the API
}

// Default returns the configuration of the reference deployment.
func Default() Config {
	return Config{
		Role: RoleCamera,
		Signaling: Signaling{
			Backend:        BackendMQTT,
			URL:            "tcp://127.0.0.1:1883",
			KeepAlive:      45 * time.Second,
			QoS:            1,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
			MaxPayload:     1024,
		},
		Peer: Peer{
			ICEServers:         []string{"stun:stun.l.google.com:19302"},
			MaxMessageSize:     1024 * 1024,
			ChannelLabel:       "live",
			Greeting:           "camlink: stream ready",
			NegotiationTimeout: 30 * time.Second,
		},
		Media: Media{
			Device:       "/dev/video0",
			Width:        640,
			Height:       360,
			FPS:          30,
			OutWidth:     640,
			OutHeight:    360,
			Quality:      75,
			QueueSize:    64,
			QueuePolicy:  QueuePolicyBlock,
			Record:       true,
			RecordPath:   "output.ts",
			Live:         true,
			ChunkSize:    16 * 1024,
			ReceivedPath: "received.ts",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Role {
	case RoleCamera, RoleViewer:
	default:
		errs = append(errs, fmt.Errorf("invalid role %q: must be 'camera' or 'viewer'", c.Role))
	}

	switch c.Signaling.Backend {
	case BackendMQTT, BackendRedis, BackendWS:
	default:
		errs = append(errs, fmt.Errorf("invalid signaling backend %q", c.Signaling.Backend))
	}
	if c.Signaling.URL == "" {
		errs = append(errs, errors.New("missing signaling url"))
	}
	if c.Signaling.QoS > 2 {
		errs = append(errs, fmt.Errorf("invalid qos %d: must be 0~2", c.Signaling.QoS))
	}
	if c.Signaling.ConnectTimeout <= 0 || c.Signaling.PublishTimeout <= 0 {
		errs = append(errs, errors.New("signaling timeouts must be positive"))
	}
	if c.Signaling.MaxPayload <= 0 {
		errs = append(errs, fmt.Errorf("invalid max payload %d: must be positive", c.Signaling.MaxPayload))
	}

	if c.Peer.ChannelLabel == "" {
		errs = append(errs, errors.New("missing peer channel label"))
	}
	if c.Peer.NegotiationTimeout <= 0 {
		errs = append(errs, errors.New("negotiation timeout must be positive"))
	}

	if c.Role == RoleCamera {
		m := c.Media
		if m.Width <= 0 || m.Height <= 0 || m.OutWidth <= 0 || m.OutHeight <= 0 {
			errs = append(errs, errors.New("media geometry must be positive"))
		}
		if m.FPS <= 0 {
			errs = append(errs, fmt.Errorf("invalid fps %d", m.FPS))
		}
		if m.Quality < 1 || m.Quality > 100 {
			errs = append(errs, fmt.Errorf("invalid quality %d: must be 1~100", m.Quality))
		}
		if m.QueueSize <= 0 {
			errs = append(errs, fmt.Errorf("invalid queue size %d", m.QueueSize))
		}
		switch m.QueuePolicy {
		case QueuePolicyBlock, QueuePolicyDropOldest:
		default:
			errs = append(errs, fmt.Errorf("invalid queue policy %q", m.QueuePolicy))
		}
		if m.Record && m.RecordPath == "" {
			errs = append(errs, errors.New("recording enabled without record path"))
		}
		if m.Live && m.ChunkSize <= 0 {
			errs = append(errs, fmt.Errorf("invalid chunk size %d", m.ChunkSize))
		}
	}

	return errors.Join(errs...)
}
