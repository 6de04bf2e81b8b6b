package classify

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Attempt is the audit record of one retry-loop attempt.
type Attempt struct {
	Number   int
	At       time.Time
	Code     string
	Message  string
	WaitedMS int64
}

// WithRetry runs op, then retries according to the classified policy of the
// first failure: constant delay for immediate codes, doubling delay for
// backoff codes, no retries at all for none/manual codes. Every attempt is
// recorded for audit. The returned error is the last failure, nil on success.
func WithRetry(ctx context.Context, op func(ctx context.Context) error) ([]Attempt, error) {
	attempts := make([]Attempt, 0, 1)

	start := time.Now()
	err := op(ctx)
	attempts = append(attempts, newAttempt(1, start, err))
	if err == nil {
		return attempts, nil
	}

	policy := PolicyFor(codeFor(err))
	if policy.Strategy == StrategyNone || policy.Strategy == StrategyManual || policy.MaxRetries == 0 {
		return attempts, err
	}

	var backoff retry.Backoff
	switch policy.Strategy {
	case StrategyBackoff:
		backoff = retry.NewExponential(policy.BaseDelay)
	default:
		backoff = retry.NewConstant(policy.BaseDelay)
	}
	backoff = retry.WithMaxRetries(uint64(policy.MaxRetries), backoff)

	lastStart := time.Now()
	retryErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		waited := time.Since(lastStart)
		attemptStart := time.Now()
		opErr := op(ctx)
		attempt := newAttempt(len(attempts)+1, attemptStart, opErr)
		attempt.WaitedMS = waited.Milliseconds()
		attempts = append(attempts, attempt)
		lastStart = time.Now()
		if opErr == nil {
			return nil
		}
		if CanRetry(codeFor(opErr), len(attempts)-1) {
			return retry.RetryableError(opErr)
		}
		return opErr
	})
	return attempts, retryErr
}

func newAttempt(number int, at time.Time, err error) Attempt {
	attempt := Attempt{Number: number, At: at.UTC()}
	if err != nil {
		attempt.Code = codeFor(err)
		attempt.Message = err.Error()
	}
	return attempt
}
