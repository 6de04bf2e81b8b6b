package githost

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

type retryPolicy struct {
	maxAttempts int
	maxWait     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts: 3,
		maxWait:     60 * time.Second,
		sleep:       sleepContext,
	}
}

// withRateLimitRetry retries fn only on rate-limit responses (403/429).
// The delay doubles per attempt, 2^(attempt+1) seconds, overridden by the
// provider's rate-limit-reset header when that yields a shorter, still
// bounded wait.
func (c *Client) withRateLimitRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.retry.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		apiErr, ok := AsAPIError(err)
		if !ok || !isRateLimited(apiErr) {
			return err
		}
		if attempt == c.retry.maxAttempts-1 {
			break
		}

		wait := time.Duration(1<<(attempt+1)) * time.Second
		if reset, ok := rateLimitResetWait(apiErr.Header, time.Now()); ok && reset < wait {
			wait = reset
		}
		if wait > c.retry.maxWait {
			wait = c.retry.maxWait
		}
		if c.logger != nil {
			c.logger.Warn("hosting api rate limited", "op", op, "attempt", attempt+1, "wait", wait)
		}
		if err := c.retry.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func isRateLimited(apiErr *APIError) bool {
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		// Primary and secondary rate limits both surface as 403 with
		// rate-limit headers or a telltale message.
		if apiErr.Header.Get("x-ratelimit-remaining") == "0" {
			return true
		}
		if apiErr.Header.Get("retry-after") != "" {
			return true
		}
		return false
	default:
		return false
	}
}

// rateLimitResetWait converts an x-ratelimit-reset epoch header into a wait
// duration from now. Non-positive or absent values report false.
func rateLimitResetWait(header http.Header, now time.Time) (time.Duration, bool) {
	raw := header.Get("x-ratelimit-reset")
	if raw == "" {
		return 0, false
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	wait := time.Unix(epoch, 0).Sub(now)
	if wait <= 0 {
		return 0, false
	}
	return wait, true
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
