package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Load builds a Config from the defaults, the optional YAML file at path and
// CAMLINK_* environment variables, in that order of precedence (lowest first).
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyEnv overrides the most commonly tuned fields from the environment.
func applyEnv(cfg *Config) error {
	cfg.Role = Role(getEnv("CAMLINK_ROLE", string(cfg.Role)))
	cfg.DeviceID = getEnv("CAMLINK_DEVICE_ID", cfg.DeviceID)
	cfg.PeerDeviceID = getEnv("CAMLINK_PEER_DEVICE_ID", cfg.PeerDeviceID)
	cfg.Signaling.Backend = getEnv("CAMLINK_SIGNALING_BACKEND", cfg.Signaling.Backend)
	cfg.Signaling.URL = getEnv("CAMLINK_SIGNALING_URL", cfg.Signaling.URL)
	cfg.Signaling.Username = getEnv("CAMLINK_SIGNALING_USERNAME", cfg.Signaling.Username)
	cfg.Signaling.Password = getEnv("CAMLINK_SIGNALING_PASSWORD", cfg.Signaling.Password)
	cfg.Media.Device = getEnv("CAMLINK_MEDIA_DEVICE", cfg.Media.Device)
	cfg.Media.RecordPath = getEnv("CAMLINK_MEDIA_RECORD_PATH", cfg.Media.RecordPath)
	cfg.Status.Addr = getEnv("CAMLINK_STATUS_ADDR", cfg.Status.Addr)

	if v := os.Getenv("CAMLINK_ICE_SERVERS"); v != "" {
		cfg.Peer.ICEServers = splitList(v)
	}

	var err error
	if cfg.Peer.NegotiationTimeout, err = getEnvDuration("CAMLINK_NEGOTIATION_TIMEOUT", cfg.Peer.NegotiationTimeout); err != nil {
		return err
	}
	if cfg.Signaling.ConnectTimeout, err = getEnvDuration("CAMLINK_CONNECT_TIMEOUT", cfg.Signaling.ConnectTimeout); err != nil {
		return err
	}
	if cfg.Debug, err = getEnvBool("CAMLINK_DEBUG", cfg.Debug); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
