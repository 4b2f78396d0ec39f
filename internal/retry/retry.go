// Package retry provides bounded retry with linear backoff for upstream
// HTTP and RPC calls. Only transient failures are retried; everything else
// surfaces immediately.
package retry

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts int           // total attempts, including the first
	Delay       time.Duration // fixed increment between attempts (linear backoff)
}

// DefaultConfig returns the default retry configuration.
// Pattern: try, wait d, try, wait 2d, try.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Delay: time.Second}
}

// transientStatusCodes is the fixed set of HTTP status codes that warrant
// a retry.
var transientStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransientStatus reports whether an HTTP status code is retryable.
func IsTransientStatus(statusCode int) bool {
	return transientStatusCodes[statusCode]
}

// TransientError marks an error as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so Do will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Do runs fn up to cfg.MaxAttempts times, sleeping Delay, 2*Delay, ... in
// between (linear backoff). A non-transient error stops the loop at once.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if _, transient := err.(*TransientError); !transient {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
