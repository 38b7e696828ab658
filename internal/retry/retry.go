// Package retry runs git operations under an exponential backoff policy.
// Transient network failures are retried, everything else fails fast.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = time.Second
	DefaultMaxDelay      = 5 * time.Second
	DefaultBackoffFactor = 2.0
)

type Options struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error, wait time.Duration)
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:   DefaultMaxAttempts,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
	}
}

// withDefaults fills zero values so a partially populated Options is usable.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = d.BackoffFactor
	}
	return o
}

func (o Options) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(o.InitialDelay),
		backoff.WithMaxInterval(o.MaxDelay),
		backoff.WithMultiplier(o.BackoffFactor),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(o.MaxAttempts-1)), ctx)
}

// Do runs operation until it succeeds, fails with a non-retryable error, the
// attempt budget is exhausted or ctx is done. Any failure is reported as a
// *GitOperationError with Retryable set to false, wrapping the last cause.
func Do[T any](ctx context.Context, label string, operation func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	attempt := 0
	op := func() (T, error) {
		attempt++
		res, err := operation(ctx)
		if err == nil {
			return res, nil
		}
		if !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, wait time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, wait)
		}
	}

	res, err := backoff.RetryNotifyWithData(op, opts.backOff(ctx), notify)
	if err != nil {
		var zero T
		return zero, &GitOperationError{
			Message:   fmt.Sprintf("%s failed after %d attempt(s): %s", label, attempt, err.Error()),
			Code:      Code(err),
			Operation: label,
			Attempts:  attempt,
			Retryable: false,
			Err:       err,
		}
	}

	return res, nil
}

// Run is Do for operations without a result.
func Run(ctx context.Context, label string, operation func(ctx context.Context) error, opts Options) error {
	_, err := Do(ctx, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, opts)
	return err
}

// GitOperationError is the terminal error of a retried operation.
type GitOperationError struct {
	Message   string
	Code      string
	Operation string
	Attempts  int
	Retryable bool
	Err       error
}

func (e *GitOperationError) Error() string {
	return e.Message
}

func (e *GitOperationError) Unwrap() error {
	return e.Err
}

// IsRetryable is authoritative: attempts are spent, whatever the cause says.
func (e *GitOperationError) IsRetryable() bool {
	return e.Retryable
}

// AsGitOperationError reports whether err carries a *GitOperationError.
func AsGitOperationError(err error) (*GitOperationError, bool) {
	var gErr *GitOperationError
	if errors.As(err, &gErr) {
		return gErr, true
	}
	return nil, false
}
