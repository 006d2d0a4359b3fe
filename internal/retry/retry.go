// Package retry provides exponential backoff retry for transient failures,
// primarily SSH dials against hosts that are still booting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy controls how Do retries an operation. A zero Policy retries once per
// second with no backoff cap, which is rarely useful; callers fill it in from
// their transport settings.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is the wait before the second attempt; it doubles per retry.
	Delay time.Duration
	// MaxDelay caps the doubling. Zero means no cap.
	MaxDelay time.Duration
}

// Do runs op until it succeeds, the attempts are exhausted, or the context is
// cancelled between attempts. Errors wrapped with Fatal are not retried.
func Do(ctx context.Context, p Policy, op func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = time.Second
	}

	delay := p.Delay
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			return fmt.Errorf("not retrying: %w", err)
		}
		if attempt == p.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", p.Attempts, lastErr)
}

// FatalError wraps an error to mark it as non-retryable.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks an error as fatal so retry loops stop immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether an error was marked fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
