// Package app contains the top-level orchestration for the camera and viewer
// roles.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/peer"
	"github.com/1ureka/camlink/internal/pubsub"
	"github.com/1ureka/camlink/internal/session"
	"github.com/1ureka/camlink/internal/status"
	"github.com/1ureka/camlink/internal/util"
	webrtcpkg "github.com/1ureka/camlink/internal/webrtc"
)

// retryDelay separates two camera sessions.
const retryDelay = 2 * time.Second

// Compile-time interface check.
var _ session.Engine = (*webrtcpkg.Engine)(nil)

// newEngineFactory returns a factory building pion engines from cfg.
func newEngineFactory(cfg config.Peer) session.EngineFactory {
	return func(h peer.Handlers) (session.Engine, error) {
		e, err := webrtcpkg.New(webrtcpkg.Config{
			ICEServers:     cfg.ICEServers,
			MaxMessageSize: cfg.MaxMessageSize,
		}, h)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// connectBroker builds the configured pub/sub client and connects it.
func connectBroker(ctx context.Context, cfg config.Config) (pubsub.Broker, error) {
	broker, err := pubsub.New(cfg.Signaling, util.ClientID(string(cfg.Role), cfg.DeviceID))
	if err != nil {
		return nil, err
	}
	if err := broker.Connect(ctx); err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to connect to %s broker at %s: %w", cfg.Signaling.Backend, cfg.Signaling.URL, err)
	}
	util.LogSuccess("connected to %s broker at %s", cfg.Signaling.Backend, cfg.Signaling.URL)
	return broker, nil
}

// newStatus returns the status server, or nil when the API is disabled.
func newStatus(cfg config.Config) *status.Server {
	if cfg.Status.Addr == "" {
		return nil
	}
	return status.New(cfg.Status.Addr, string(cfg.Role), cfg.Debug)
}

// resolveDeviceID fills in the device id from the hardware when unset.
func resolveDeviceID(cfg *config.Config) {
	if cfg.DeviceID == "" {
		cfg.DeviceID = util.DeviceID()
	}
}
