// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy controls the backoff loop. A zero MaxAttempts means "until the context ends".
type Policy struct {
	MaxAttempts int           // total attempts including the first
	Initial     time.Duration // wait before the second attempt
	MaxWait     time.Duration // cap for a single wait
}

// Validate rejects policies that would spin or never wait.
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("MaxAttempts must be >= 0, got %d", p.MaxAttempts)
	}
	if p.Initial <= 0 {
		return fmt.Errorf("Initial must be > 0, got %v", p.Initial)
	}
	if p.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", p.MaxWait)
	}
	return nil
}

// OnRetry observes a failed attempt before the next wait.
type OnRetry func(attempt int, wait time.Duration, err error)

// Do calls fn until it succeeds, attempts run out or ctx is done. It returns the
// number of attempts made and the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry OnRetry) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	wait := p.Initial
	attempt := 0
	for {
		attempt++
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return attempt, fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("stopped after %d attempts: %w (last error: %v)", attempt, ctx.Err(), err)
		case <-timer.C:
		}

		wait *= 2
		if wait > p.MaxWait {
			wait = p.MaxWait
		}
	}
}
