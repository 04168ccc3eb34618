// Package retry runs calls to external AI services with bounded exponential
// backoff and decides which failures are worth another attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

// TransientError marks a failure the caller may retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// StatusTransient reports whether an HTTP status code is worth retrying.
func StatusTransient(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

var transientMarkers = []string{
	"status code: 429", "status code: 500", "status code: 502", "status code: 503", "status code: 504",
	"rate limit", "too many requests", "timeout", "connection reset", "temporarily unavailable",
}

// IsTransient classifies err. Explicit TransientError wins; otherwise
// deadlines, network timeouts and well-known provider messages count.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Policy bounds the attempts made by Do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Delay returns the wait before the attempt following attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt-1))) * p.BaseDelay
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out. The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) || attempt >= p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if IsTransient(lastErr) {
		return fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, lastErr)
	}
	return lastErr
}
