package download

import (
	"fmt"
	"net/http"
)

// ErrorClass tags every failure with the policy-relevant category. The
// orchestrator is the only component that acts on it.
type ErrorClass string

const (
	ClassInputInvalid      ErrorClass = "input_invalid"
	ClassNetwork           ErrorClass = "network"
	ClassMirrorUnavailable ErrorClass = "mirror_unavailable"
	ClassDownloadFailed    ErrorClass = "download_failed"
	ClassExtractionFailed  ErrorClass = "extraction_failed"
	ClassCloneFailed       ErrorClass = "clone_failed"
	ClassAuthFailed        ErrorClass = "auth_failed"
	ClassRateLimited       ErrorClass = "rate_limited"
	ClassNotFound          ErrorClass = "not_found"
	ClassUnauthorized      ErrorClass = "unauthorized"
	ClassFileSystem        ErrorClass = "filesystem"
	ClassUnknown           ErrorClass = "unknown"
)

// retryableByDefault holds the classes the retry policy considers worth
// another attempt regardless of message contents.
var retryableByDefault = map[ErrorClass]bool{
	ClassNetwork:           true,
	ClassMirrorUnavailable: true,
	ClassDownloadFailed:    true,
	ClassRateLimited:       true,
}

// Error is a classified failure. It is produced at the point of failure
// and propagated upward unchanged.
type Error struct {
	Class     ErrorClass
	Message   string
	Retryable bool
	Context   map[string]any
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a classified error with the class's default retryability.
func NewError(class ErrorClass, message string, cause error) *Error {
	return &Error{
		Class:     class,
		Message:   message,
		Retryable: retryableByDefault[class],
		Cause:     cause,
	}
}

// Errorf is NewError with a formatted message and no cause.
func Errorf(class ErrorClass, format string, args ...any) *Error {
	return NewError(class, fmt.Sprintf(format, args...), nil)
}

// WithContext attaches structured context for logging.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPError represents an HTTP error response from a transfer or probe.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}

// ClassifyStatus maps an HTTP status code to an error class.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized:
		return ClassUnauthorized
	case status == http.StatusForbidden:
		return ClassAuthFailed
	case status == http.StatusNotFound:
		return ClassNotFound
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500:
		return ClassNetwork
	default:
		return ClassDownloadFailed
	}
}

// classifyHTTPError wraps an HTTPError into a classified error.
func classifyHTTPError(httpErr *HTTPError, url string) *Error {
	class := ClassifyStatus(httpErr.StatusCode)
	e := NewError(class, fmt.Sprintf("request failed with status %d", httpErr.StatusCode), httpErr)
	return e.WithContext("status", httpErr.StatusCode).WithContext("url", url)
}
