package fetch

import (
	"context"
	"errors"
	"strings"

	"github.com/repofetch/repofetch/internal/download"
)

// retryablePatterns marks a failure retryable by message contents alone,
// regardless of class. Matching is case-insensitive substring search. The
// list covers transport-layer chatter that surfaces through classes the
// policy would otherwise treat as terminal.
var retryablePatterns = []string{
	"timeout",
	"connection",
	"reset",
	"network",
	"econnreset",
	"etimedout",
	"enotfound",
	"socket hang up",
	"aborted",
	"overloaded",
	"too many requests",
}

// isRetryable decides whether a failed attempt is worth repeating on the
// same method. Classified errors carry their own flag; anything else is
// judged by message pattern. Context deadline errors count as timeouts.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var derr *download.Error
	if errors.As(err, &derr) && derr.Retryable {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// action is the orchestrator's next move after a failed attempt.
type action int

const (
	actionRetry action = iota
	actionFallback
	actionStop
)

// nextAction is the pure decision function driving the retry state
// machine. attempt is the zero-based index of the attempt that just
// failed; moreMethods reports whether a fallback method remains.
func nextAction(attempt, maxRetries int, err error, moreMethods bool) action {
	if isRetryable(err) && attempt < maxRetries {
		return actionRetry
	}
	if moreMethods {
		return actionFallback
	}
	return actionStop
}

// errorClassOf extracts the class from a classified error, defaulting to
// unknown for anything else.
func errorClassOf(err error) download.ErrorClass {
	var derr *download.Error
	if errors.As(err, &derr) {
		return derr.Class
	}
	return download.ClassUnknown
}
