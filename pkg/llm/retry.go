package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the number of generation attempts before giving up.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the backoff floor between attempts.
	DefaultBaseDelay = 4 * time.Second

	// DefaultMaxDelay is the backoff cap between attempts.
	DefaultMaxDelay = 10 * time.Second
)

// ErrRetryExhausted is returned once all generation attempts have failed.
var ErrRetryExhausted = errors.New("generation retries exhausted")

// Retrying wraps a Generator with bounded retries and exponential backoff.
// Delays double from BaseDelay up to MaxDelay. Context cancellation is never
// retried; any other failure is treated as transient.
type Retrying struct {
	inner       Generator
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger

	// sleep is swappable so tests can avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps gen with the default retry policy.
func NewRetrying(gen Generator, logger *zap.Logger) *Retrying {
	return &Retrying{
		inner:       gen,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Generate runs the wrapped generator, retrying transient failures.
func (r *Retrying) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error

	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		lastErr = err
		if attempt == r.maxAttempts {
			break
		}

		r.logger.Warn("generation attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}

		delay = min(delay*2, r.maxDelay)
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, r.maxAttempts, lastErr)
}

// Close closes the wrapped generator.
func (r *Retrying) Close() error {
	return r.inner.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Ensure Retrying implements Generator
var _ Generator = (*Retrying)(nil)
