package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/repofetch/repofetch/internal/safety"
)

const (
	defaultProbeTimeout = 10 * time.Second
	probeMaxWorkers     = 10
	maxProbeBodyBytes   = 1 * 1024 * 1024
	minHealthyBodyBytes = 10
)

// healthAll probes the given descriptors concurrently, consulting the
// cache first. It waits for every outstanding probe before returning;
// result order matches the input order.
func (s *Selector) healthAll(ctx context.Context, cands []Descriptor) []HealthResult {
	results := make([]HealthResult, len(cands))
	sem := make(chan struct{}, probeMaxWorkers)
	var wg sync.WaitGroup

	for i, d := range cands {
		if cached, ok := s.cache.Health(d.Name); ok {
			results[i] = cached
			continue
		}

		wg.Add(1)
		go func(idx int, d Descriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r := s.checkHealth(ctx, d)
			s.cache.SetHealth(r)
			results[idx] = r
		}(i, d)
	}

	wg.Wait()
	return results
}

// checkHealth performs one health probe. Probe failures are data, not
// errors: any exception yields an unhealthy result whose response time is
// pinned to the probe timeout so slow endpoints sort worse, not absent.
func (s *Selector) checkHealth(ctx context.Context, d Descriptor) HealthResult {
	timeout := d.probeTimeout()
	result := HealthResult{
		Mirror:       d.Name,
		ResponseTime: timeout,
		CheckedAt:    s.now(),
	}

	target := d.healthTarget()
	if _, err := safety.ValidateProbeURL(target); err != nil {
		result.Error = err.Error()
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Cache-busting query param plus no-cache so an intermediate CDN
	// cannot answer for a dead mirror.
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%s_=%d", target, sep, s.now().UnixNano())

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	start := s.now()
	resp, err := s.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.ResponseTime = s.now().Sub(start)
	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")

	body, err := safety.ReadAllWithLimit(resp.Body, maxProbeBodyBytes)
	if err != nil {
		result.Error = fmt.Sprintf("reading probe body: %v", err)
		return result
	}

	result.Healthy, result.Error = evaluateHealth(resp.StatusCode, result.ContentType, body)
	return result
}

// evaluateHealth applies the health criteria to a probe response. A proxy
// that answers with an HTML error page on HTTP 200 is unhealthy: it would
// relay error pages instead of archives.
func evaluateHealth(status int, contentType string, body []byte) (bool, string) {
	if status >= 400 {
		return false, fmt.Sprintf("status %d", status)
	}

	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/html") {
		return false, "mirror answered with an HTML page"
	}
	if ct != "" &&
		!strings.Contains(ct, "json") &&
		!strings.Contains(ct, "text/plain") &&
		!strings.Contains(ct, "octet-stream") {
		return false, fmt.Sprintf("unexpected content type %q", contentType)
	}

	if len(body) < minHealthyBodyBytes {
		return false, fmt.Sprintf("probe body too short (%d bytes)", len(body))
	}

	if strings.Contains(ct, "json") {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return false, fmt.Sprintf("invalid JSON probe body: %v", err)
		}
		if !hasStatusField(payload) {
			return false, "JSON probe body missing status field"
		}
	}

	return true, ""
}

// hasStatusField checks for the field a proxy health endpoint is expected
// to expose.
func hasStatusField(payload map[string]any) bool {
	for _, key := range []string{"status", "ok", "version", "message"} {
		if _, ok := payload[key]; ok {
			return true
		}
	}
	return false
}
