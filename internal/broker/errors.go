package broker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthExpired means the trading or quote session is no longer valid.
	// Callers reconnect once and retry; a second failure propagates.
	ErrAuthExpired = errors.New("broker session expired")

	// ErrMetadataUnavailable means a batch metadata call failed. Pricing
	// degrades to whatever subset could be resolved instead of aborting.
	ErrMetadataUnavailable = errors.New("product metadata unavailable")

	// ErrNoQuoteFeed means an instrument has no live-quote support. This is
	// an expected condition, not a failure.
	ErrNoQuoteFeed = errors.New("instrument has no quote feed")

	// ErrRateLimited means the broker throttled the request. Callers should
	// back off; the client never retries these automatically.
	ErrRateLimited = errors.New("broker rate limited")

	// ErrConfirmationMismatch means confirm was called with a confirmation
	// id that does not belong to the preceding check.
	ErrConfirmationMismatch = errors.New("confirmation id mismatch")

	// ErrSessionUnavailable means no session source is configured.
	ErrSessionUnavailable = errors.New("broker session source not configured")
)

// ValidationError is a terminal order-check failure carrying the broker's
// reason list. It is returned as data, never panicked.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return "order validation rejected"
	}
	return "order validation rejected: " + strings.Join(e.Reasons, "; ")
}

// ErrorKind labels a broker failure for retry decisions.
type ErrorKind string

const (
	KindAuthExpired ErrorKind = "auth_expired"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnknown     ErrorKind = "unknown"
)

// authMarkers are the substrings observed in broker error text when a
// session has lapsed. The broker has no typed error channel, so this list
// is the single place new expiry formats get added.
var authMarkers = []string{
	"401",
	"unauthorized",
	"login",
	"credential",
}

var rateMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
}

// ClassifyError maps raw broker error text to an ErrorKind.
func ClassifyError(text string) ErrorKind {
	lower := strings.ToLower(text)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return KindAuthExpired
		}
	}
	if strings.Contains(lower, "session") && strings.Contains(lower, "expired") {
		return KindAuthExpired
	}
	for _, marker := range rateMarkers {
		if strings.Contains(lower, marker) {
			return KindRateLimited
		}
	}
	return KindUnknown
}

// IsAuthExpired reports whether err (or its text) indicates a lapsed session.
func IsAuthExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) {
		return true
	}
	return ClassifyError(err.Error()) == KindAuthExpired
}

// WithRetry runs op up to maxAttempts times, retrying only while retryable
// approves the failure. It replaces depth-counted recursive re-invocation
// with a bounded loop.
func WithRetry(maxAttempts int, op func(attempt int) error, retryable func(error) bool) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = op(attempt)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", maxAttempts, err)
}
