package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Policy configures a Retrier.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; it doubles per attempt.
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil retries everything except context cancellation.
	Retryable func(error) bool
}

// Delay returns the wait after the given failed attempt (1-based): BaseDelay * 2^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << uint(attempt-1)
}

func (p Policy) validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative")
	}
	return nil
}

// Retrier re-runs failing operations with exponential backoff.
type Retrier struct {
	policy Policy
	log    zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier. It panics on an invalid policy, which is a wiring bug.
func New(policy Policy, log zerolog.Logger) *Retrier {
	if err := policy.validate(); err != nil {
		panic(fmt.Sprintf("invalid retry policy: %v", err))
	}
	return &Retrier{policy: policy, log: log, sleep: sleepCtx}
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op until it succeeds, returns a non-retryable error, or MaxAttempts is exhausted.
// Every failed attempt is logged; the last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, r, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, r *Retrier, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.log.Info().Str("op", name).Int("attempt", attempt).Msg("operation succeeded after retries")
			}
			return result, nil
		}
		lastErr = err

		if !r.retryable(err) {
			r.log.Warn().Err(err).Str("op", name).Int("attempt", attempt).Msg("operation failed with non-retryable error")
			return zero, err
		}

		if attempt == r.policy.MaxAttempts {
			r.log.Error().Err(err).Str("op", name).Int("attempts", attempt).Msg("operation failed after max attempts")
			break
		}

		delay := r.policy.Delay(attempt)
		r.log.Warn().
			Err(err).
			Str("op", name).
			Int("attempt", attempt).
			Int("max_attempts", r.policy.MaxAttempts).
			Dur("backoff", delay).
			Msg("operation failed, retrying")

		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func (r *Retrier) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if r.policy.Retryable != nil {
		return r.policy.Retryable(err)
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
