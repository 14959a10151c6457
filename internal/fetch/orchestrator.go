package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/repofetch/repofetch/internal/download"
	"github.com/repofetch/repofetch/internal/gitremote"
)

const defaultMaxRetries = 3

// fallbackOrder maps each primary method to the alternates tried after it
// is exhausted. When the primary was a relay, a clone against the origin
// is the next most likely to differ in outcome; for the other primaries a
// relay is more often reachable than the origin itself in constrained
// networks, so mirrors lead.
var fallbackOrder = map[download.Method][]download.Method{
	download.MethodMirror: {download.MethodClone, download.MethodDirect},
	download.MethodDirect: {download.MethodMirror, download.MethodClone},
	download.MethodClone:  {download.MethodMirror, download.MethodDirect},
}

// Runner is the single-attempt capability the orchestrator sequences.
// Satisfied by *download.Executor.
type Runner interface {
	Run(ctx context.Context, method download.Method, opts download.Options) (*download.Result, error)
}

// Orchestrator drives attempts across retries and method fallback. It is
// strictly sequential: no two methods run concurrently, and every retry
// delay is a real suspension point.
type Orchestrator struct {
	exec      Runner
	logger    *slog.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
	fallback  bool

	// Injected for deterministic tests.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// NewOrchestrator wires an orchestrator around an executor. fallback
// controls whether alternate methods are tried after the primary is
// exhausted.
func NewOrchestrator(exec Runner, fallback bool, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		exec:      exec,
		logger:    logger,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		fallback:  fallback,
		sleep:     sleepContext,
	}
}

// Fetch runs the full retry/fallback cycle for a primary method and
// always returns a terminal result. Failures are folded into the result
// rather than returned; nothing escapes this boundary as an error.
func (o *Orchestrator) Fetch(ctx context.Context, primary download.Method, opts download.Options) *download.Result {
	start := time.Now()

	// Zero is a real budget (single attempt per method); only a negative
	// value asks for the default.
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if opts.Ref == "" {
		opts.Ref = gitremote.DefaultRef
	}

	methods := []download.Method{primary}
	if o.fallback {
		methods = append(methods, fallbackOrder[primary]...)
	}

	var lastErr error
	lastAttempt := 0
	fallbackUsed := false

	for mi, method := range methods {
		if mi > 0 {
			fallbackUsed = true
			o.logger.Info("falling back to alternate method",
				"method", method,
				"previous_error", lastErr,
			)
		}

		for attempt := 0; ; attempt++ {
			result, err := o.exec.Run(ctx, method, opts)
			if err == nil {
				result.RetryCount = attempt
				result.FallbackUsed = fallbackUsed
				result.TotalTime = time.Since(start)
				return result
			}
			lastErr = err
			lastAttempt = attempt

			moreMethods := mi < len(methods)-1
			switch nextAction(attempt, maxRetries, err, moreMethods) {
			case actionRetry:
				delay := jitter(rawDelay(attempt, o.baseDelay, o.maxDelay), o.randFloat)
				o.logger.Warn("attempt failed, retrying",
					"method", method,
					"attempt", attempt+1,
					"delay", delay,
					"error", err,
				)
				if serr := o.sleep(ctx, delay); serr != nil {
					return o.terminal(primary, opts, attempt, fallbackUsed, serr, start)
				}
				continue
			case actionFallback:
				o.logger.Warn("method exhausted",
					"method", method,
					"attempts", attempt+1,
					"error", err,
				)
			case actionStop:
				return o.terminal(primary, opts, attempt, fallbackUsed, err, start)
			}
			break
		}
	}

	return o.terminal(primary, opts, lastAttempt, fallbackUsed, lastErr, start)
}

// terminal builds the failure result handed to the caller when every
// option is spent. retries is the count actually performed on the last
// method tried, which on a retryable exhaustion equals the configured
// maximum.
func (o *Orchestrator) terminal(primary download.Method, opts download.Options, retries int, fallbackUsed bool, err error, start time.Time) *download.Result {
	msg := "all download methods failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &download.Result{
		Success:      false,
		Method:       primary,
		Ref:          string(opts.Ref),
		Error:        msg,
		ErrorClass:   errorClassOf(err),
		RetryCount:   retries,
		FallbackUsed: fallbackUsed,
		TotalTime:    time.Since(start),
	}
}

// sleepContext waits out the delay or the context, whichever ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
