package mirror

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/repofetch/repofetch/internal/safety"
)

const userAgent = "repofetch/1.0"

const (
	// Candidates carried into scoring when speed testing is off/on.
	maxScoredByLatency = 3
	maxSpeedTested     = 5
)

// Composite score weights. Sustained throughput dominates total transfer
// time for archive-sized payloads, so it outweighs latency and static
// priority.
const (
	weightSpeed    = 0.7
	weightLatency  = 0.2
	weightPriority = 0.1
)

// Selector ranks candidate mirrors by measured health and throughput.
type Selector struct {
	mirrors   []Descriptor
	cache     *ProbeCache
	client    *http.Client
	logger    *slog.Logger
	speedTest bool
	now       func() time.Time
}

// NewSelector creates a selector over the given mirror list. The probe
// cache is injected so callers control sharing and tests get isolation.
func NewSelector(mirrors []Descriptor, cache *ProbeCache, speedTest bool, logger *slog.Logger) *Selector {
	if cache == nil {
		cache = NewProbeCache(ProbeTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		mirrors:   mirrors,
		cache:     cache,
		client:    safety.NewHTTPClient(0), // per-probe deadlines via context
		logger:    logger,
		speedTest: speedTest,
		now:       time.Now,
	}
}

// Mirrors returns the configured descriptor list.
func (s *Selector) Mirrors() []Descriptor {
	return s.mirrors
}

// Best returns the highest-scoring enabled mirror supporting the given
// method, or nil if no descriptor qualifies. When every candidate is
// unhealthy the least-bad one (lowest recorded response time) is returned
// rather than failing outright.
func (s *Selector) Best(ctx context.Context, method string) *Descriptor {
	cands := s.filter(method)
	if len(cands) == 0 {
		s.logger.Debug("no mirrors support method", "method", method)
		return nil
	}

	healths := s.healthAll(ctx, cands)

	var healthy []int
	for i, h := range healths {
		if h.Healthy {
			healthy = append(healthy, i)
		}
	}

	if len(healthy) == 0 {
		best := 0
		for i, h := range healths {
			if h.ResponseTime < healths[best].ResponseTime {
				best = i
			}
		}
		s.logger.Warn("no healthy mirrors, using least-bad candidate",
			"mirror", cands[best].Name,
			"response_time", healths[best].ResponseTime,
		)
		d := cands[best]
		return &d
	}

	ranked := s.rank(ctx, cands, healths, healthy)
	top := ranked[0]
	s.logger.Info("selected mirror",
		"mirror", top.Descriptor.Name,
		"score", top.Score,
		"healthy_candidates", len(healthy),
	)
	d := top.Descriptor
	return &d
}

// Rank probes and scores every qualifying mirror, best first. Used by the
// CLI probe view; Best shares the same scoring path.
func (s *Selector) Rank(ctx context.Context, method string) []Ranked {
	cands := s.filter(method)
	if len(cands) == 0 {
		return nil
	}

	healths := s.healthAll(ctx, cands)
	var healthy []int
	for i, h := range healths {
		if h.Healthy {
			healthy = append(healthy, i)
		}
	}
	if len(healthy) == 0 {
		// Nothing to score; expose the probe outcomes as-is.
		out := make([]Ranked, len(cands))
		for i := range cands {
			out[i] = Ranked{Descriptor: cands[i], Health: healths[i]}
		}
		return out
	}
	return s.rank(ctx, cands, healths, healthy)
}

// filter keeps enabled descriptors supporting the method, in list order.
func (s *Selector) filter(method string) []Descriptor {
	var out []Descriptor
	for _, d := range s.mirrors {
		if d.Enabled && d.SupportsMethod(method) {
			out = append(out, d)
		}
	}
	return out
}

// rank scores the healthy candidates. With speed testing off, the three
// fastest responders are scored on response time and priority alone; with
// it on, the five fastest responders get throughput probes and the
// composite score decides.
func (s *Selector) rank(ctx context.Context, cands []Descriptor, healths []HealthResult, healthy []int) []Ranked {
	// Sort healthy candidate indices by response time ascending. Stable,
	// so equal measurements keep configuration order.
	byLatency := make([]int, len(healthy))
	copy(byLatency, healthy)
	sort.SliceStable(byLatency, func(a, b int) bool {
		return healths[byLatency[a]].ResponseTime < healths[byLatency[b]].ResponseTime
	})

	if !s.speedTest {
		if len(byLatency) > maxScoredByLatency {
			byLatency = byLatency[:maxScoredByLatency]
		}
		ranked := make([]Ranked, 0, len(byLatency))
		for _, i := range byLatency {
			rt := float64(healths[i].ResponseTime.Milliseconds())
			ranked = append(ranked, Ranked{
				Descriptor: cands[i],
				Health:     healths[i],
				Score:      (1000 - rt) / cands[i].effectivePriority(),
			})
		}
		sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Score > ranked[b].Score })
		return ranked
	}

	if len(byLatency) > maxSpeedTested {
		byLatency = byLatency[:maxSpeedTested]
	}

	tested := make([]Descriptor, len(byLatency))
	for i, idx := range byLatency {
		tested[i] = cands[idx]
	}
	speeds := s.speedAll(ctx, tested)

	ranked := make([]Ranked, 0, len(byLatency))
	for i, idx := range byLatency {
		sp := speeds[i]
		latencyMs := float64(sp.Latency.Milliseconds())
		score := weightSpeed*(sp.SpeedMBps*10) +
			weightLatency*(1000/(latencyMs+100)) +
			weightPriority*(10/cands[idx].effectivePriority())
		ranked = append(ranked, Ranked{
			Descriptor: cands[idx],
			Health:     healths[idx],
			Speed:      &speeds[i],
			Score:      score,
		})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Score > ranked[b].Score })
	return ranked
}
