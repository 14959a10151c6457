package fetch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/repofetch/repofetch/internal/download"
	"github.com/repofetch/repofetch/internal/gitremote"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedRunner replays a fixed sequence of outcomes and records the
// method of every invocation.
type scriptedRunner struct {
	outcomes []error // nil means success
	methods  []download.Method
}

func (r *scriptedRunner) Run(ctx context.Context, method download.Method, opts download.Options) (*download.Result, error) {
	r.methods = append(r.methods, method)
	i := len(r.methods) - 1
	var err error
	if i < len(r.outcomes) {
		err = r.outcomes[i]
	}
	if err != nil {
		return nil, err
	}
	return &download.Result{
		Success: true,
		Method:  method,
		Ref:     string(opts.Ref),
	}, nil
}

func testOrchestrator(r Runner, fallback bool) *Orchestrator {
	o := NewOrchestrator(r, fallback, discardLogger())
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	o.randFloat = func() float64 { return 0.5 }
	return o
}

func baseOptions() download.Options {
	return download.Options{
		Repo:       gitremote.Repo{Owner: "octo", Name: "demo"},
		Ref:        "main",
		MaxRetries: 2,
	}
}

func TestFetchFirstAttemptSucceeds(t *testing.T) {
	r := &scriptedRunner{}
	result := testOrchestrator(r, true).Fetch(context.Background(), download.MethodMirror, baseOptions())

	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if result.RetryCount != 0 || result.FallbackUsed {
		t.Errorf("clean success must not report retries or fallback: %+v", result)
	}
	if len(r.methods) != 1 || r.methods[0] != download.MethodMirror {
		t.Errorf("unexpected invocations: %v", r.methods)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	netErr := download.NewError(download.ClassNetwork, "connection reset", nil)
	r := &scriptedRunner{outcomes: []error{netErr, netErr, nil}}

	var slept int
	o := testOrchestrator(r, true)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	result := o.Fetch(context.Background(), download.MethodMirror, baseOptions())
	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if result.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", result.RetryCount)
	}
	if result.FallbackUsed {
		t.Error("retries on the primary method are not fallback")
	}
	if slept != 2 {
		t.Errorf("expected 2 backoff sleeps, got %d", slept)
	}
	for _, m := range r.methods {
		if m != download.MethodMirror {
			t.Errorf("retries must stay on the primary method, saw %s", m)
		}
	}
}

func TestFetchNonRetryableShortCircuits(t *testing.T) {
	authErr := download.NewError(download.ClassUnauthorized, "bad credentials", nil)
	r := &scriptedRunner{outcomes: []error{authErr, authErr, authErr}}

	result := testOrchestrator(r, false).Fetch(context.Background(), download.MethodDirect, baseOptions())
	if result.Success {
		t.Fatal("expected terminal failure")
	}
	if len(r.methods) != 1 {
		t.Errorf("non-retryable failure must stop after one attempt, got %d", len(r.methods))
	}
	if result.ErrorClass != download.ClassUnauthorized {
		t.Errorf("expected unauthorized class, got %s", result.ErrorClass)
	}
	if result.RetryCount != 0 {
		t.Errorf("no retries were performed, got retry count %d", result.RetryCount)
	}
	if result.FallbackUsed {
		t.Error("fallback disabled must never report fallbackUsed")
	}
}

func TestFetchTerminalResultDefaultsRef(t *testing.T) {
	authErr := download.NewError(download.ClassUnauthorized, "bad credentials", nil)
	r := &scriptedRunner{outcomes: []error{authErr}}

	opts := baseOptions()
	opts.Ref = ""
	result := testOrchestrator(r, false).Fetch(context.Background(), download.MethodDirect, opts)

	if result.Success {
		t.Fatal("expected terminal failure")
	}
	if result.Ref != string(gitremote.DefaultRef) {
		t.Errorf("expected default ref %q, got %q", gitremote.DefaultRef, result.Ref)
	}
}

func TestFetchZeroRetryBudget(t *testing.T) {
	netErr := download.NewError(download.ClassNetwork, "connection reset", nil)
	r := &scriptedRunner{outcomes: []error{netErr, netErr, netErr}}

	opts := baseOptions()
	opts.MaxRetries = 0
	result := testOrchestrator(r, true).Fetch(context.Background(), download.MethodMirror, opts)

	if result.Success {
		t.Fatal("expected terminal failure")
	}
	// One attempt per method, no retries even for a retryable class.
	if len(r.methods) != 3 {
		t.Errorf("expected one attempt per method, got %v", r.methods)
	}
	if result.RetryCount != 0 {
		t.Errorf("zero budget must report zero retries, got %d", result.RetryCount)
	}
}

func TestFetchNegativeRetriesUsesDefault(t *testing.T) {
	netErr := download.NewError(download.ClassNetwork, "connection reset", nil)
	outcomes := make([]error, defaultMaxRetries)
	for i := range outcomes {
		outcomes[i] = netErr
	}
	r := &scriptedRunner{outcomes: append(outcomes, nil)}

	opts := baseOptions()
	opts.MaxRetries = -1
	result := testOrchestrator(r, false).Fetch(context.Background(), download.MethodMirror, opts)

	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	// The first attempt plus the full default retry budget.
	if len(r.methods) != defaultMaxRetries+1 {
		t.Errorf("expected %d attempts, got %d", defaultMaxRetries+1, len(r.methods))
	}
	if result.RetryCount != defaultMaxRetries {
		t.Errorf("expected retry count %d, got %d", defaultMaxRetries, result.RetryCount)
	}
}

func TestFetchNonRetryableMovesToFallback(t *testing.T) {
	authErr := download.NewError(download.ClassUnauthorized, "bad credentials", nil)
	r := &scriptedRunner{outcomes: []error{authErr, nil}}

	result := testOrchestrator(r, true).Fetch(context.Background(), download.MethodMirror, baseOptions())
	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if !result.FallbackUsed {
		t.Error("success on an alternate method must report fallbackUsed")
	}
	want := []download.Method{download.MethodMirror, download.MethodClone}
	if len(r.methods) != 2 || r.methods[0] != want[0] || r.methods[1] != want[1] {
		t.Errorf("expected %v, got %v", want, r.methods)
	}
}

func TestFetchFallbackExhaustion(t *testing.T) {
	netErr := download.NewError(download.ClassNetwork, "connection reset", nil)
	outcomes := make([]error, 9) // 3 methods x (1 attempt + 2 retries)
	for i := range outcomes {
		outcomes[i] = netErr
	}
	r := &scriptedRunner{outcomes: outcomes}

	opts := baseOptions()
	result := testOrchestrator(r, true).Fetch(context.Background(), download.MethodMirror, opts)

	if result.Success {
		t.Fatal("expected terminal failure")
	}
	if !result.FallbackUsed {
		t.Error("exhaustion across methods must report fallbackUsed")
	}
	if result.RetryCount != opts.MaxRetries {
		t.Errorf("expected retry count %d, got %d", opts.MaxRetries, result.RetryCount)
	}
	if len(r.methods) != 9 {
		t.Errorf("expected 9 attempts, got %d: %v", len(r.methods), r.methods)
	}
	if result.Error == "" || result.ErrorClass != download.ClassNetwork {
		t.Errorf("terminal result must carry the last error: %+v", result)
	}
}

func TestFallbackOrderPerPrimary(t *testing.T) {
	authErr := download.NewError(download.ClassUnauthorized, "nope", nil)
	tests := []struct {
		primary download.Method
		want    []download.Method
	}{
		{download.MethodMirror, []download.Method{download.MethodMirror, download.MethodClone, download.MethodDirect}},
		{download.MethodDirect, []download.Method{download.MethodDirect, download.MethodMirror, download.MethodClone}},
		{download.MethodClone, []download.Method{download.MethodClone, download.MethodMirror, download.MethodDirect}},
	}
	for _, tt := range tests {
		t.Run(string(tt.primary), func(t *testing.T) {
			r := &scriptedRunner{outcomes: []error{authErr, authErr, authErr}}
			testOrchestrator(r, true).Fetch(context.Background(), tt.primary, baseOptions())
			if len(r.methods) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, r.methods)
			}
			for i := range tt.want {
				if r.methods[i] != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], r.methods[i])
				}
			}
		})
	}
}

func TestFetchTimeoutMessageRetriesThenFallsBack(t *testing.T) {
	// A mirror failure whose message mentions a timeout is retried by
	// pattern even though its class is terminal; once the single retry is
	// spent, the clone method takes over.
	timeoutErr := download.NewError(download.ClassCloneFailed, "git clone failed: connection timed out", nil)
	r := &scriptedRunner{outcomes: []error{timeoutErr, timeoutErr, nil}}

	opts := baseOptions()
	opts.MaxRetries = 1
	result := testOrchestrator(r, true).Fetch(context.Background(), download.MethodMirror, opts)

	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	want := []download.Method{download.MethodMirror, download.MethodMirror, download.MethodClone}
	if len(r.methods) != 3 {
		t.Fatalf("expected %v, got %v", want, r.methods)
	}
	for i := range want {
		if r.methods[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], r.methods[i])
		}
	}
	if !result.FallbackUsed {
		t.Error("expected fallbackUsed after method switch")
	}
}

func TestFetchCanceledContextStops(t *testing.T) {
	netErr := download.NewError(download.ClassNetwork, "connection reset", nil)
	r := &scriptedRunner{outcomes: []error{netErr, netErr, netErr}}

	ctx, cancel := context.WithCancel(context.Background())
	o := testOrchestrator(r, true)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	result := o.Fetch(ctx, download.MethodMirror, baseOptions())
	if result.Success {
		t.Fatal("expected failure after cancellation")
	}
	if len(r.methods) != 1 {
		t.Errorf("cancellation during backoff must stop the cycle, got %d attempts", len(r.methods))
	}
}
