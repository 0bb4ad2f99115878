package main

import (
	"testing"

	"github.com/1ureka/camlink/internal/config"
)

func TestBackendFromURL(t *testing.T) {
	testCases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"tcp://127.0.0.1:1883", config.BackendMQTT, false},
		{"ssl://broker.example.com:8883", config.BackendMQTT, false},
		{"redis://localhost:6379/0", config.BackendRedis, false},
		{" wss://relay.example.com/ws ", config.BackendWS, false},
		{"http://example.com", "", true},
		{"not a url", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := backendFromURL(tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("backendFromURL(%q) error = %v, wantErr %v", tc.raw, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("backendFromURL(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
