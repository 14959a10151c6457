package download

import (
	"time"

	"github.com/repofetch/repofetch/internal/gitremote"
)

// Options configures a single top-level retrieval. Read-only once built.
// MaxRetries zero means a single attempt per method; negative values ask
// the orchestrator for its default budget.
type Options struct {
	Repo       gitremote.Repo
	Ref        gitremote.Ref
	Token      string
	Dest       string
	CloneDepth int
	CleanDest  bool
	Timeout    time.Duration
	MaxRetries int
}

// Result reports one retrieval attempt. The executor creates it fresh per
// attempt; the orchestrator stamps RetryCount, FallbackUsed, and TotalTime
// before handing it to the caller. Never reused across operations.
type Result struct {
	Success      bool          `json:"success"`
	Method       Method        `json:"method"`
	Mirror       string        `json:"mirror,omitempty"`
	DownloadTime time.Duration `json:"download_time"`
	SpeedMBps    float64       `json:"speed_mbps"`
	Size         int64         `json:"size_bytes"`
	CommitID     string        `json:"commit_id,omitempty"`
	Ref          string        `json:"ref"`
	Error        string        `json:"error,omitempty"`
	ErrorClass   ErrorClass    `json:"error_class,omitempty"`
	RetryCount   int           `json:"retry_count"`
	FallbackUsed bool          `json:"fallback_used"`
	TotalTime    time.Duration `json:"total_time"`
}

// speedMBps computes throughput in MiB per second from transfer metrics.
func speedMBps(bytes int64, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = 0.001
	}
	return float64(bytes) / (1024 * 1024) / seconds
}
