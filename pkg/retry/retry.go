// Package retry implements bounded exponential backoff for billing
// provider calls.
//
// Only transport-level failures are retried. Authentication, validation,
// and business rejections are final on the first occurrence; retrying them
// would re-submit a request the provider has already refused.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/platterhq/platter/pkg/apperrors"
	"github.com/platterhq/platter/pkg/observability"
)

// Policy configures retry behavior. Delays grow as BaseDelay * 2^(attempt-1),
// so attempt 1 runs immediately and attempts 2..MaxAttempts wait 1s, 2s, 4s
// with the defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy returns the retry policy used for provider calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
	}
}

// NextDelay returns the delay before the given attempt number (1-based).
// The first attempt has no delay.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return p.BaseDelay << (attempt - 2)
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. It stops
// early on success, on a terminal error, or when ctx is cancelled. The last
// error is returned when all attempts fail.
func (p Policy) Do(ctx context.Context, logger *observability.Logger, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if delay := p.NextDelay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}

		if attempt < p.MaxAttempts {
			logger.WithError(lastErr).WithFields(map[string]interface{}{
				"operation": op,
				"attempt":   attempt,
			}).Warn("retryable failure, backing off")
		}
	}

	return lastErr
}

// retryableFragments matches transport failures reported only as text, such
// as errors that crossed a process or serialization boundary.
var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"timed out",
	"timeout",
	"no such host",
	"network is unreachable",
}

// classifiedError lets an error decide its own retryability, such as an HTTP
// status error that knows 5xx is transient and 4xx is not.
type classifiedError interface {
	error
	Retryable() bool
}

// IsRetryable reports whether err is a transient transport failure.
// Structured errors and context cancellation are always terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if apperrors.AsError(err) != nil {
		return false
	}

	var classified classifiedError
	if errors.As(err, &classified) {
		return classified.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}
