// Package retry runs an operation a bounded number of times with backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Config provides retry configuration
type Config struct {
	MaxAttempts int           // total attempts, at least one
	Delay       time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for the growing delay, 0 means no cap
	Multiplier  float64       // 1.0 keeps the delay fixed
}

// Fixed returns a config with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Config {
	return Config{MaxAttempts: attempts, Delay: delay, Multiplier: 1}
}

// Do executes fn until it succeeds, the attempts are exhausted or ctx ends.
func Do(ctx context.Context, cfg Config, name string, fn func() error) error {
	if cfg.Delay < 0 {
		return errors.New("retry: Delay cannot be negative")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	var lastErr error
	delay := cfg.Delay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Error().Msgf("%s failed (attempt %d/%d): %s", name, attempt, cfg.MaxAttempts, err)

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, name string, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, name, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
