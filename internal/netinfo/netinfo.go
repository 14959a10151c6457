// Package netinfo samples coarse network conditions toward the origin
// host. The snapshot informs only the initial method choice when the
// caller asks for automatic selection; it is never consulted again.
package netinfo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/repofetch/repofetch/internal/safety"
)

const (
	defaultProbeURL    = "https://github.com"
	defaultSampleURL   = "https://github.com/favicon.ico"
	defaultTimeout     = 5 * time.Second
	sampleRangeBytes   = 64 * 1024
	maxSampleBodyBytes = 256 * 1024
)

// Info is a point-in-time network snapshot. Zero values mean the
// corresponding measurement was unavailable.
type Info struct {
	Region                 string  `json:"region,omitempty"`
	Country                string  `json:"country,omitempty"`
	ISP                    string  `json:"isp,omitempty"`
	ConnectionType         string  `json:"connection_type,omitempty"`
	EstimatedBandwidthMbps float64 `json:"estimated_bandwidth_mbps"`
	LatencyToOriginMs      float64 `json:"latency_to_origin_ms"`
}

// Sampler measures reachability and rough throughput to the origin.
type Sampler struct {
	client    *http.Client
	logger    *slog.Logger
	probeURL  string
	sampleURL string
}

// NewSampler builds a sampler with the default origin endpoints.
func NewSampler(logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		client:    safety.NewHTTPClient(defaultTimeout),
		logger:    logger,
		probeURL:  defaultProbeURL,
		sampleURL: defaultSampleURL,
	}
}

// Sample measures origin latency and, when the origin is reachable, a
// rough bandwidth estimate from a small ranged download. Both
// measurements are best-effort; failures leave zero values.
func (s *Sampler) Sample(ctx context.Context) Info {
	var info Info

	latency, err := s.measureLatency(ctx)
	if err != nil {
		s.logger.Debug("origin latency probe failed", "error", err)
		return info
	}
	info.LatencyToOriginMs = float64(latency.Milliseconds())

	mbps, err := s.estimateBandwidth(ctx)
	if err != nil {
		s.logger.Debug("bandwidth sample failed", "error", err)
		return info
	}
	info.EstimatedBandwidthMbps = mbps
	return info
}

func (s *Sampler) measureLatency(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.probeURL, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("origin returned status %d", resp.StatusCode)
	}
	return time.Since(start), nil
}

func (s *Sampler) estimateBandwidth(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sampleURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", sampleRangeBytes-1))

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("sample returned status %d", resp.StatusCode)
	}

	body, err := safety.ReadAllWithLimit(resp.Body, maxSampleBodyBytes)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}

	bits := float64(len(body)) * 8
	return bits / elapsed / 1e6, nil
}
