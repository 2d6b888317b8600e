// Package retry runs store operations with exponential backoff, retrying
// only failures the errors package classifies as transient.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	dserrors "github.com/TristanCP/kapua/errors"
)

// Config bounds the retry loop.
type Config struct {
	// MaxAttempts caps total calls including the first; values below 1
	// are treated as 1.
	MaxAttempts int
	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the grown backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts, typically 2.0.
	Multiplier float64
	// AddJitter spreads delays by up to 25% to avoid synchronized retries.
	AddJitter bool
}

// DefaultConfig returns the policy used by the store facades
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick returns a tighter policy for startup probing
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

func (c Config) sanitized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	return c
}

// NonRetryableError marks an error the loop must not retry even if its
// class is transient.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to stop the retry loop immediately
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks whether err carries the non-retryable marker
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

var (
	jitterMu  sync.Mutex
	jitterSrc = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Do runs fn until it succeeds, fails non-transiently, exhausts the
// attempt budget, or the context ends. Invalid and fatal classifications
// stop the loop on the spot; only transient failures back off and retry.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.sanitized()
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsNonRetryable(lastErr) || !dserrors.IsTransient(lastErr) {
			return lastErr
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, err)
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}

		if err := sleep(ctx, withJitter(cfg, delay)); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, err)
		}
		delay = nextDelay(cfg, delay)
	}
}

// DoWithResult is Do for operations returning a value
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

func withJitter(cfg Config, delay time.Duration) time.Duration {
	if !cfg.AddJitter {
		return delay
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return delay + time.Duration(jitterSrc.Int63n(int64(delay/4)+1))
}

func nextDelay(cfg Config, delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * cfg.Multiplier)
	if next > cfg.MaxDelay || next < delay {
		return cfg.MaxDelay
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
