// Package resilience provides retry with capped exponential backoff for the
// provider, index and relay clients. Only errors classified as transient are
// retried; everything else surfaces immediately.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Policy controls attempt count and backoff shape. The zero value is usable
// and retries twice after the initial call.
type Policy struct {
	Attempts  int           // total attempts including the first; default 3
	BaseDelay time.Duration // delay before the first retry; default 500ms
	MaxDelay  time.Duration // backoff cap; default 30s

	// Retryable overrides the default IsTransient classification when set.
	Retryable func(error) bool
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// DoVal runs fn under the policy and returns the first successful value.
// Backoff doubles per attempt with ±25% jitter; context cancellation stops
// the loop between attempts.
func DoVal[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts {
			break
		}

		zap.L().Warn("retrying after transient error",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(backoff(p, attempt)):
		}
	}
	return zero, lastErr
}

// Do is DoVal for operations without a return value.
func Do(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	_, err := DoVal(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func backoff(p Policy, attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	d *= 1 + (rand.Float64()-0.5)/2
	return time.Duration(d)
}

// transientError marks an error as safe to retry, optionally carrying the
// HTTP status that triggered it.
type transientError struct {
	err    error
	status int
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as retryable. status may be zero for non-HTTP failures.
func Transient(err error, status int) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err, status: status}
}

// RetryableStatus reports whether an HTTP status indicates a transient
// server-side condition.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// network failure fragments seen from wrapped HTTP client errors.
var transientFragments = []string{
	"connection reset by peer",
	"broken pipe",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

// IsTransient reports whether err, anywhere in its chain, is retryable:
// explicitly marked, a network timeout, a connection-level failure, or a
// wrapped client error matching a known transient message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, f := range transientFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
