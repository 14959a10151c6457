package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// speedTestBytes bounds each throughput probe via a ranged GET.
	speedTestBytes int64 = 1 * 1024 * 1024

	// smallObjectBytes is the size under which throughput readings are
	// penalized: connection setup dominates and overstates the mirror.
	smallObjectBytes int64 = 100 * 1024

	smallObjectPenalty = 0.7

	// minMeasuredBytes floors the byte count so near-empty responses do
	// not produce division artifacts.
	minMeasuredBytes int64 = 1024
)

// speedAll probes throughput for the given descriptors concurrently,
// consulting the cache first. Result order matches the input order.
func (s *Selector) speedAll(ctx context.Context, cands []Descriptor) []SpeedResult {
	results := make([]SpeedResult, len(cands))
	sem := make(chan struct{}, probeMaxWorkers)
	var wg sync.WaitGroup

	for i, d := range cands {
		if cached, ok := s.cache.Speed(d.Name); ok {
			results[i] = cached
			continue
		}

		wg.Add(1)
		go func(idx int, d Descriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r := s.measureSpeed(ctx, d)
			s.cache.SetSpeed(r)
			results[idx] = r
		}(i, d)
	}

	wg.Wait()
	return results
}

// measureSpeed runs one throughput probe: latency first, then a bounded
// ranged GET against the mirror's test object.
func (s *Selector) measureSpeed(ctx context.Context, d Descriptor) SpeedResult {
	result := SpeedResult{
		Mirror:    d.Name,
		CheckedAt: s.now(),
	}

	timeout := d.probeTimeout()
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := d.speedTarget()

	latency, err := s.measureLatency(probeCtx, target)
	if err != nil {
		result.Error = err.Error()
		result.Latency = timeout
		return result
	}
	result.Latency = latency

	start := s.now()
	bytes, err := s.downloadSample(probeCtx, target)
	elapsed := s.now().Sub(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	measured := bytes
	if measured < minMeasuredBytes {
		measured = minMeasuredBytes
	}

	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = 0.001
	}

	speed := float64(measured) / (1024 * 1024) / seconds
	if bytes < smallObjectBytes {
		speed *= smallObjectPenalty
	}

	result.SpeedMBps = speed
	result.TestDuration = seconds
	result.TestSize = bytes
	result.Success = true
	return result
}

// measureLatency issues a HEAD request; mirrors that reject HEAD get a
// one-byte ranged GET instead.
func (s *Selector) measureLatency(ctx context.Context, target string) (time.Duration, error) {
	start := s.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, fmt.Errorf("creating latency request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err == nil && resp.StatusCode < 400 {
		resp.Body.Close()
		return s.now().Sub(start), nil
	}
	if err == nil {
		resp.Body.Close()
	}

	// HEAD unsupported; fall back to a minimal ranged GET.
	start = s.now()
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("creating latency request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", "bytes=0-0")

	resp, err = s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("latency probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("latency probe status %d", resp.StatusCode)
	}
	return s.now().Sub(start), nil
}

// downloadSample fetches up to speedTestBytes from the test object and
// returns the number of bytes read.
func (s *Selector) downloadSample(ctx context.Context, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("creating sample request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", speedTestBytes-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sample download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("sample download status %d", resp.StatusCode)
	}

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, speedTestBytes))
	if err != nil {
		return 0, fmt.Errorf("reading sample: %w", err)
	}
	return n, nil
}
