package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMeasureSpeedLargeSample(t *testing.T) {
	payload := strings.Repeat("x", 200*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	d := testDescriptor("sample", 1)
	d.BaseURL = srv.URL

	s := NewSelector([]Descriptor{d}, NewProbeCache(ProbeTTL), true, discardLogger())
	r := s.measureSpeed(context.Background(), d)

	if !r.Success {
		t.Fatalf("expected success, got error %q", r.Error)
	}
	if r.TestSize != int64(len(payload)) {
		t.Errorf("expected %d test bytes, got %d", len(payload), r.TestSize)
	}
	if r.SpeedMBps <= 0 {
		t.Errorf("expected positive speed, got %f", r.SpeedMBps)
	}
	if r.Latency <= 0 {
		t.Errorf("expected positive latency, got %v", r.Latency)
	}
}

func TestMeasureSpeedSmallObjectPenalty(t *testing.T) {
	// Serve the same bytes in under and over the small-object threshold
	// and check the penalty is applied only to the small one.
	serve := func(n int) *httptest.Server {
		payload := strings.Repeat("y", n)
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.Write([]byte(payload))
		}))
	}

	small := serve(10 * 1024)
	defer small.Close()

	dSmall := testDescriptor("small", 1)
	dSmall.BaseURL = small.URL

	s := NewSelector([]Descriptor{dSmall}, NewProbeCache(ProbeTTL), true, discardLogger())
	r := s.measureSpeed(context.Background(), dSmall)
	if !r.Success {
		t.Fatalf("expected success, got %q", r.Error)
	}

	// Recompute the unpenalized speed; the floor applies because the
	// object is tiny.
	measured := r.TestSize
	if measured < minMeasuredBytes {
		measured = minMeasuredBytes
	}
	unpenalized := float64(measured) / (1024 * 1024) / r.TestDuration
	want := unpenalized * smallObjectPenalty
	if diff := r.SpeedMBps - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected penalized speed %f, got %f", want, r.SpeedMBps)
	}
}

func TestMeasureLatencyFallsBackToRangedGet(t *testing.T) {
	var sawRange bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			http.Error(w, "no head", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Range") == "bytes=0-0" {
			sawRange = true
		}
		w.Write([]byte("z"))
	}))
	defer srv.Close()

	d := testDescriptor("nohead", 1)
	d.BaseURL = srv.URL

	s := NewSelector([]Descriptor{d}, NewProbeCache(ProbeTTL), true, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	latency, err := s.measureLatency(ctx, d.speedTarget())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawRange {
		t.Error("expected ranged GET fallback after HEAD rejection")
	}
	if latency <= 0 {
		t.Errorf("expected positive latency, got %v", latency)
	}
}

func TestMeasureSpeedUnreachableMirror(t *testing.T) {
	d := testDescriptor("gone", 1)
	d.BaseURL = "http://127.0.0.1:1"
	d.Timeout = 300 * time.Millisecond

	s := NewSelector([]Descriptor{d}, NewProbeCache(ProbeTTL), true, discardLogger())
	r := s.measureSpeed(context.Background(), d)

	if r.Success {
		t.Error("expected failure for unreachable mirror")
	}
	if r.Error == "" {
		t.Error("expected error message recorded")
	}
}
