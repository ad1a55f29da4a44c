package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindRateLimit  ErrorKind = "rate_limit"
	KindParsing    ErrorKind = "parsing"
	KindValidation ErrorKind = "validation"
	KindUnknown    ErrorKind = "unknown"
)

// FetchError carries a classified adapter failure.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with an explicit kind.
func NewFetchError(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// HTTPError classifies a non-2xx response.
func HTTPError(status int, err error) *FetchError {
	kind := KindValidation
	switch {
	case status == 429:
		kind = KindRateLimit
	case status == 408 || status >= 500:
		kind = KindNetwork
	}
	return &FetchError{Kind: kind, StatusCode: status, Err: err}
}

var networkPatterns = []string{
	"timeout",
	"network",
	"connection reset by peer",
	"broken pipe",
	"no such host",
	"server closed idle connection",
}

// Classify returns the kind of err: an explicit FetchError wins, then
// network-level errors, then message heuristics.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNetwork
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") {
		return KindRateLimit
	}
	for _, p := range networkPatterns {
		if strings.Contains(msg, p) {
			return KindNetwork
		}
	}
	return KindUnknown
}

// Retryable reports whether a fetch that failed with err may be retried.
// context.Canceled never is.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case KindNetwork, KindRateLimit:
		return true
	}
	return false
}
