package netinfo

import "github.com/repofetch/repofetch/internal/download"

const (
	// Above this latency the origin is considered poorly reachable and a
	// relay is preferred.
	highLatencyMs = 500

	// Below this bandwidth an archive transfer beats a full clone.
	lowBandwidthMbps = 2
)

// Recommend picks the initial method from a network snapshot. An
// unreachable origin (no latency measurement) routes through a mirror; a
// reachable but slow path prefers direct archive transfer over clone.
func Recommend(info Info) download.Method {
	switch {
	case info.LatencyToOriginMs == 0 || info.LatencyToOriginMs > highLatencyMs:
		return download.MethodMirror
	case info.EstimatedBandwidthMbps > 0 && info.EstimatedBandwidthMbps < lowBandwidthMbps:
		return download.MethodDirect
	default:
		return download.MethodClone
	}
}
