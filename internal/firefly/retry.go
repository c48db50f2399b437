package firefly

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"budgetview/internal/log"
)

// RetryPolicy bounds how often and how slowly a failed request is repeated.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns sensible defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// delay returns the wait before the given retry (0-based), doubled per attempt,
// capped at MaxDelay, plus up to 50% jitter.
func (p RetryPolicy) delay(retry int, jitter func(int64) int64) time.Duration {
	d := p.BaseDelay
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d > 0 && jitter != nil {
		d += time.Duration(jitter(int64(d) / 2))
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func defaultJitter(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return rand.Int64N(n)
}

// retryable reports whether err is worth another attempt: transport failures
// and retryable status codes, but never caller cancellation.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return true
}

// withRetry runs op until it succeeds, fails permanently, or attempts run out.
func (c *Client) withRetry(ctx context.Context, endpoint string, op func() error) error {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !retryable(ctx, err) || attempt == attempts-1 {
			break
		}

		wait := c.retry.delay(attempt, c.jitter)
		c.logger.WarnContext(ctx, "Remote request failed, retrying",
			log.FieldEndpoint, endpoint,
			log.FieldAttempt, attempt+1,
			"wait", wait,
			log.FieldError, err)
		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}
