package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

// StatusError carries a non-2xx HTTP response from a generation endpoint.
// The status code drives retry classification.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d: %s", e.Code, e.Body)
}

// RetryPolicy bounds retries around a single endpoint call. The status set
// and delays are deployment policy, loaded from configuration.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryableStatuses []int

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the policy used when configuration is silent.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          8 * time.Second,
		RetryableStatuses: []int{408, 409, 425, 429, 500, 502, 503, 504},
	}
}

// Do invokes op, retrying retryable failures with exponential backoff and
// jitter until the attempt ceiling is reached. The last error is returned
// when attempts are exhausted; fatal errors propagate immediately.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !p.Retryable(lastErr) || attempt == attempts {
			return lastErr
		}
		if err := p.wait(ctx, attempt); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// Retryable classifies an error as transient. Connection resets/refusals,
// timeouts, DNS failures, and the configured HTTP status set retry; anything
// else is fatal.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		for _, code := range p.RetryableStatuses {
			if statusErr.Code == code {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Some transports flatten the syscall error into the message.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection aborted") ||
		strings.Contains(msg, "no such host")
}

// Backoff returns the delay before the given retry attempt (1-based),
// capped at MaxDelay, plus up to 20% random jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			delay = maxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}

func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, p.Backoff(attempt))
}

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
