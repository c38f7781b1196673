package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// Policy configures RetryWithBackoff.
type Policy struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the backoff delay
	Multiplier   float64       // backoff growth factor
	Retryable    func(error) bool
}

// DefaultPolicy returns the retry policy used for remote agent calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Retryable:    DefaultRetryable,
	}
}

// RetryError aggregates a failed retry loop: how many attempts were made and
// the last underlying error.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error { return e.Last }

// retryableStatusCodes are the HTTP status signatures treated as transient.
var retryableStatusCodes = []string{"408", "429", "500", "502", "503", "504"}

// DefaultRetryable reports whether an error looks transient: network
// resets/refusals, timeouts, or a retryable HTTP status in the message.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") {
		return true
	}
	for _, code := range retryableStatusCodes {
		if strings.Contains(msg, "status code "+code) || strings.Contains(msg, "status "+code) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs fn, retrying transient failures with exponential
// backoff: min(InitialDelay * Multiplier^attempt, MaxDelay). Non-retryable
// errors propagate immediately without consuming a retry. When every attempt
// fails the returned error is a *RetryError carrying the attempt count.
func RetryWithBackoff[T any](ctx context.Context, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	retryable := policy.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt-1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, &RetryError{Attempts: policy.MaxRetries + 1, Last: lastErr}
}

// backoffDelay computes the sleep before retry number attempt (0-based).
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.Multiplier
	}
	if max := float64(policy.MaxDelay); policy.MaxDelay > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}
