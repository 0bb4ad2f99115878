package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/peer"
	"github.com/1ureka/camlink/internal/pubsub"
	"github.com/1ureka/camlink/internal/session"
	"github.com/1ureka/camlink/internal/util"
)

func get(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: invalid JSON %q: %v", path, rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	code, body := get(t, New(":0", "camera", false), "/health")
	if code != http.StatusOK || body["status"] != "ok" || body["role"] != "camera" {
		t.Errorf("GET /health = %d %v", code, body)
	}
}

func TestStats(t *testing.T) {
	util.Stats.AddPublished()
	code, body := get(t, New(":0", "camera", false), "/stats")
	if code != http.StatusOK {
		t.Fatalf("GET /stats = %d", code)
	}
	if n, ok := body["published"].(float64); !ok || n < 1 {
		t.Errorf("published = %v, want >= 1", body["published"])
	}
}

type nopEngine struct{}

func (nopEngine) OpenChannel(string) error            { return nil }
func (nopEngine) ApplyRemoteDescription(string) error { return nil }
func (nopEngine) AddRemoteCandidate(string) error     { return nil }
func (nopEngine) Close() error                        { return nil }

func TestSession(t *testing.T) {
	s := New(":0", "viewer", false)

	if code, _ := get(t, s, "/session"); code != http.StatusNotFound {
		t.Errorf("GET /session without a session = %d, want 404", code)
	}

	hub := pubsub.NewMemory()
	client := hub.Client()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess := session.New(session.Config{Role: config.RoleViewer, DeviceID: "view-1"}, client,
		func(peer.Handlers) (session.Engine, error) { return nopEngine{}, nil }, session.Options{})
	s.SetSession(sess)

	code, body := get(t, s, "/session")
	if code != http.StatusOK {
		t.Fatalf("GET /session = %d", code)
	}
	if body["role"] != "viewer" || body["deviceId"] != "view-1" || body["connection"] != "new" {
		t.Errorf("GET /session body = %v", body)
	}
}
