package store

import (
	"time"

	"github.com/repofetch/repofetch/internal/download"
)

// FetchRecord is one completed top-level retrieval, successful or not.
type FetchRecord struct {
	ID             int64
	Repo           string
	Ref            string
	Method         string
	Mirror         string
	Success        bool
	SizeBytes      int64
	SpeedMBps      float64
	DownloadTimeMs int64
	TotalTimeMs    int64
	RetryCount     int
	FallbackUsed   bool
	ErrorClass     string
	ErrorMessage   string
	CreatedAt      time.Time
}

// FromResult converts a terminal download result into a history record.
func FromResult(repo string, r *download.Result) *FetchRecord {
	return &FetchRecord{
		Repo:           repo,
		Ref:            r.Ref,
		Method:         string(r.Method),
		Mirror:         r.Mirror,
		Success:        r.Success,
		SizeBytes:      r.Size,
		SpeedMBps:      r.SpeedMBps,
		DownloadTimeMs: r.DownloadTime.Milliseconds(),
		TotalTimeMs:    r.TotalTime.Milliseconds(),
		RetryCount:     r.RetryCount,
		FallbackUsed:   r.FallbackUsed,
		ErrorClass:     string(r.ErrorClass),
		ErrorMessage:   r.Error,
	}
}

// ProbeRecord is one health or speed probe outcome for a mirror.
type ProbeRecord struct {
	ID             int64
	Mirror         string
	Kind           string // "health" or "speed"
	Healthy        bool
	ResponseTimeMs int64
	SpeedMBps      float64
	LatencyMs      int64
	Error          string
	CheckedAt      time.Time
}

// MethodStats aggregates fetch outcomes per method.
type MethodStats struct {
	Method       string
	Total        int
	Succeeded    int
	AvgSpeedMBps float64
}

// MirrorStats aggregates probe outcomes per mirror.
type MirrorStats struct {
	Mirror       string
	Probes       int
	Healthy      int
	AvgSpeedMBps float64
}
