package mirror

import (
	"strings"
	"time"
)

// Descriptor describes a candidate proxy mirror. Descriptors are built at
// configuration time and read-only during an operation.
type Descriptor struct {
	Name     string        `json:"name" yaml:"name"`
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	Priority int           `json:"priority" yaml:"priority"` // lower = preferred
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
	Methods  []string      `json:"methods" yaml:"methods"`
	Regions  []string      `json:"regions,omitempty" yaml:"regions,omitempty"`

	// Optional credentials baked into the mirror entry. When present they
	// take precedence over the caller's token.
	Username string `json:"-" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"password,omitempty"`

	// Optional explicit probe targets. When empty the base URL is probed.
	HealthURL string `json:"health_url,omitempty" yaml:"health_url,omitempty"`
	SpeedURL  string `json:"speed_url,omitempty" yaml:"speed_url,omitempty"`
}

// SupportsMethod reports whether the mirror advertises the given method.
func (d Descriptor) SupportsMethod(method string) bool {
	for _, m := range d.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// HasCredentials reports whether the mirror entry embeds credentials.
func (d Descriptor) HasCredentials() bool {
	return d.Username != "" || d.Password != ""
}

func (d Descriptor) healthTarget() string {
	if d.HealthURL != "" {
		return d.HealthURL
	}
	return d.BaseURL
}

func (d Descriptor) speedTarget() string {
	if d.SpeedURL != "" {
		return d.SpeedURL
	}
	return d.healthTarget()
}

func (d Descriptor) probeTimeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return defaultProbeTimeout
}

// effectivePriority guards the scoring math against zero or negative
// priorities from hand-written config.
func (d Descriptor) effectivePriority() float64 {
	if d.Priority < 1 {
		return 1
	}
	return float64(d.Priority)
}

// HealthResult is the outcome of a single health probe.
type HealthResult struct {
	Mirror       string        `json:"mirror"`
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	StatusCode   int           `json:"status_code,omitempty"`
	ContentType  string        `json:"content_type,omitempty"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// SpeedResult is the outcome of a single throughput probe.
type SpeedResult struct {
	Mirror       string        `json:"mirror"`
	SpeedMBps    float64       `json:"speed_mbps"`
	Latency      time.Duration `json:"latency"`
	TestDuration float64       `json:"test_duration_sec"`
	TestSize     int64         `json:"test_size_bytes"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Ranked pairs a descriptor with its probe outcomes and composite score,
// sorted best-first by the selector.
type Ranked struct {
	Descriptor Descriptor
	Health     HealthResult
	Speed      *SpeedResult // nil when speed testing is disabled
	Score      float64
}
