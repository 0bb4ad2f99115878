// Command camlink is the CLI entry point.
//
// The same binary runs both ends of the link: the camera captures, records
// and streams video over a WebRTC data channel; the viewer answers its offer
// and reassembles the stream. A pub/sub broker (MQTT, Redis or the camlink
// relay) carries the signaling.
//
// With no -role flag and no config file the role is asked interactively.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/1ureka/camlink/internal/app"
	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "", "YAML config file")
	role := flag.String("role", "", "Role: camera or viewer")
	id := flag.String("id", "", "Device id (default: first hardware address)")
	peerID := flag.String("peer", "", "Viewer only: camera device id to watch (default: any)")
	brokerURL := flag.String("broker", "", "Signaling broker URL: tcp://, redis:// or ws://")
	device := flag.String("device", "", "Camera only: V4L2 device, or 'test' for the pattern generator")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if *debugMode {
		cfg.Debug = true
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("camlink — v%s", version))
	pterm.Println()

	switch {
	case *role != "":
		cfg.Role = config.Role(*role)
	case *configPath == "" && os.Getenv("CAMLINK_ROLE") == "":
		cfg.Role = askRole()
	}
	if *id != "" {
		cfg.DeviceID = *id
	}
	if *peerID != "" {
		cfg.PeerDeviceID = *peerID
	}
	if *device != "" {
		cfg.Media.Device = *device
	}
	if *brokerURL != "" {
		backend, err := backendFromURL(*brokerURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg.Signaling.Backend = backend
		cfg.Signaling.URL = *brokerURL
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(1)
	}

	switch cfg.Role {
	case config.RoleCamera:
		err = app.RunCamera(ctx, cfg)
	case config.RoleViewer:
		err = app.RunViewer(ctx, cfg)
	}
	if err != nil {
		util.LogError("%s stopped: %v", cfg.Role, err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed %s", cfg.Role)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// backendFromURL picks the signaling backend from the URL scheme.
func backendFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid broker URL: %s", raw)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts":
		return config.BackendMQTT, nil
	case "redis", "rediss":
		return config.BackendRedis, nil
	case "ws", "wss":
		return config.BackendWS, nil
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

// askRole prompts for the role.
func askRole() config.Role {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Camera — Capture and stream", "Viewer — Watch a camera"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(choice, "Viewer") {
		return config.RoleViewer
	}
	return config.RoleCamera
}
