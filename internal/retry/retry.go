// Package retry provides a bounded-retry executor with exponential backoff.
//
// Executors compose by nesting: an operation already wrapped by an inner
// executor can be wrapped again at an outer layer, giving a multiplicative
// attempt budget. Each policy therefore carries its own deadline so the
// worst-case wall clock stays bounded regardless of how many layers stack.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(ctx context.Context, err error) bool

// Policy configures one retry layer.
type Policy struct {
	// Name labels the layer in logs (e.g. "workflow", "agent").
	Name string

	// MaxAttempts is the total invocation budget, including the first try.
	MaxAttempts int

	// BaseDelay is the sleep before the second attempt; attempt n sleeps
	// BaseDelay * Multiplier^(n-1).
	BaseDelay time.Duration

	Multiplier float64

	// Jitter scales each sleep by a random factor in [0, 1) (full jitter).
	Jitter bool

	// Deadline bounds the total wall-clock time of Do, independent of the
	// attempt count. Zero means no layer deadline beyond the caller's ctx.
	Deadline time.Duration

	// Classify decides retryability. Nil retries everything except context
	// cancellation.
	Classify Classifier
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// FatalError marks an error that must not be retried by any layer.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so outer retry layers give up immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Executor runs operations under one Policy.
type Executor struct {
	policy Policy

	// sleep is swapped in tests to keep backoff assertions fast.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Executor for the given policy.
func New(policy Policy) *Executor {
	return &Executor{
		policy: policy.withDefaults(),
		sleep:  sleepCtx,
	}
}

// Do invokes op, retrying transient failures per the policy. The final
// error is wrapped as Fatal when retries are exhausted or the error is
// classified non-transient, so outer layers do not burn their own budget
// on it unless they choose to.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if e.policy.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.Deadline)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Fatal(fmt.Errorf("retry %s: %w", e.policy.Name, err))
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if IsFatal(lastErr) || !e.retryable(ctx, lastErr) {
			return Fatal(fmt.Errorf("retry %s: %w", e.policy.Name, lastErr))
		}

		if attempt == e.policy.MaxAttempts-1 {
			break
		}

		delay := e.backoff(attempt)
		slog.WarnContext(ctx, "operation failed, retrying",
			"layer", e.policy.Name,
			"attempt", attempt+1,
			"max_attempts", e.policy.MaxAttempts,
			"delay", delay,
			"error", lastErr)

		if err := e.sleep(ctx, delay); err != nil {
			return Fatal(fmt.Errorf("retry %s: %w", e.policy.Name, err))
		}
	}

	return Fatal(fmt.Errorf("retry %s: exhausted %d attempts: %w",
		e.policy.Name, e.policy.MaxAttempts, lastErr))
}

// Execute runs op under exec's policy and returns its value.
func Execute[T any](ctx context.Context, exec *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := exec.Do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

func (e *Executor) retryable(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if e.policy.Classify == nil {
		return true
	}
	return e.policy.Classify(ctx, err)
}

func (e *Executor) backoff(attempt int) time.Duration {
	d := float64(e.policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= e.policy.Multiplier
	}
	if e.policy.Jitter {
		d *= rand.Float64()
	}
	return time.Duration(d)
}

// sleepCtx waits for d without holding any lock, returning early if the
// context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
