package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEvaluateHealth(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		healthy     bool
	}{
		{"plain text ok", 200, "text/plain", "mirror ready for traffic", true},
		{"octet stream ok", 200, "application/octet-stream", "0123456789abcdef", true},
		{"json with status field", 200, "application/json", `{"status":"ok","uptime":12}`, true},
		{"json missing status field", 200, "application/json", `{"whatever":"else"}`, false},
		{"invalid json", 200, "application/json", `{"status": oops`, false},
		{"html error page", 200, "text/html", "<html><body>404</body></html>", false},
		{"unexpected content type", 200, "image/png", "xxxxxxxxxxxxxxxx", false},
		{"server error", 502, "text/plain", "bad gateway upstream", false},
		{"client error", 404, "text/plain", "not found anywhere", false},
		{"body too short", 200, "text/plain", "tiny", false},
		{"redirectish status ok", 204, "text/plain", "no content but fine", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthy, reason := evaluateHealth(tt.status, tt.contentType, []byte(tt.body))
			if healthy != tt.healthy {
				t.Errorf("evaluateHealth(%d, %q) = %v (%s), want %v",
					tt.status, tt.contentType, healthy, reason, tt.healthy)
			}
		})
	}
}

func TestCheckHealthTimeoutPinsResponseTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	d := testDescriptor("sluggish", 1)
	d.BaseURL = srv.URL
	d.Timeout = 50 * time.Millisecond

	s := NewSelector([]Descriptor{d}, NewProbeCache(ProbeTTL), false, discardLogger())
	r := s.checkHealth(context.Background(), d)

	if r.Healthy {
		t.Error("timed-out probe must be unhealthy")
	}
	if r.Error == "" {
		t.Error("expected the probe error to be recorded")
	}
	// The timeout itself is the recorded response time so slow endpoints
	// sort worse, not absent.
	if r.ResponseTime != d.Timeout {
		t.Errorf("expected response time pinned to timeout %v, got %v", d.Timeout, r.ResponseTime)
	}
}

func TestCheckHealthExplicitHealthURL(t *testing.T) {
	var probed string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probed = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	d := testDescriptor("custom", 1)
	d.BaseURL = srv.URL
	d.HealthURL = srv.URL + "/api/health"

	s := NewSelector([]Descriptor{d}, NewProbeCache(ProbeTTL), false, discardLogger())
	r := s.checkHealth(context.Background(), d)

	if !r.Healthy {
		t.Fatalf("expected healthy result, got %+v", r)
	}
	if probed != "/api/health" {
		t.Errorf("expected explicit health URL to be probed, got %s", probed)
	}
	if !strings.Contains(r.ContentType, "json") {
		t.Errorf("expected JSON content type recorded, got %s", r.ContentType)
	}
}
