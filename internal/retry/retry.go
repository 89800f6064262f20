// Package retry runs an operation a bounded number of times with a delay
// between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/flowcal/internal/timeutil"
)

// ErrExhausted is wrapped by Do when every attempt failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy describes how many times to attempt an operation and how long to
// wait between attempts. A Backoff of 0 or 1 keeps the delay fixed.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     float64
	MaxDelay    time.Duration
}

// DefaultPolicy is ten attempts five seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 10, Delay: 5 * time.Second}
}

// delay returns the wait before attempt n+1, n starting at 1.
func (p Policy) delay(n int) time.Duration {
	d := p.Delay
	if p.Backoff > 1 {
		for i := 1; i < n; i++ {
			d = time.Duration(float64(d) * p.Backoff)
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, the policy's attempts are used up or ctx
// is done. fn receives the 1-based attempt number. When attempts run out
// the returned error wraps both ErrExhausted and the last failure.
func Do(ctx context.Context, p Policy, clock timeutil.Clock, fn func(attempt int) error) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(p.delay(attempt)):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
