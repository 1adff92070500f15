// Package retry provides a bounded exponential-backoff retry loop, used
// anywhere a cloud API call or network download needs to ride out
// transient failures without retrying forever.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options configures a retry loop.
type Options struct {
	Tries    int           // total attempts, including the first; Tries <= 0 means 1
	Delay    time.Duration // delay before the second attempt
	Backoff  float64       // multiplier applied to Delay after each failed attempt; must be >= 1
	MaxDelay time.Duration // cap on the delay between attempts; 0 means no cap

	// Retryable reports whether err should trigger another attempt. A nil
	// Retryable retries every non-nil error.
	Retryable func(err error) bool
}

func (o Options) normalized() Options {
	if o.Tries <= 0 {
		o.Tries = 1
	}
	if o.Backoff < 1 {
		o.Backoff = 1
	}
	if o.Retryable == nil {
		o.Retryable = func(error) bool { return true }
	}
	return o
}

// Do calls fn until it succeeds, Options.Tries is exhausted, Retryable
// says the error isn't worth retrying, or ctx is cancelled. It returns the
// last error on exhaustion.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.normalized()

	delay := opts.Delay
	var lastErr error
	for attempt := 1; attempt <= opts.Tries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !opts.Retryable(lastErr) {
			return lastErr
		}
		if attempt == opts.Tries {
			break
		}

		slog.Debug("retry: attempt failed, backing off", "attempt", attempt, "tries", opts.Tries, "delay", delay, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if delay > 0 {
			delay = time.Duration(float64(delay) * opts.Backoff)
			if opts.MaxDelay > 0 && delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}
	return fmt.Errorf("retry: exhausted %d attempts: %w", opts.Tries, lastErr)
}
