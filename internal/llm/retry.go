package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig controls the retry middleware.
type RetryConfig struct {
	// MaxAttempts bounds total attempts including the first. The run config
	// key maxRetries feeds this value; default 3.
	MaxAttempts int

	// InitialInterval is the base backoff before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the exponential backoff.
	MaxInterval time.Duration

	// Multiplier grows the interval between attempts; must be >= 1.
	Multiplier float64

	// UseJitter enables full-jitter randomization of the backoff.
	UseJitter bool

	// RetrySchemaInvalid makes schema-validation failures consume retry
	// attempts, re-prompting the model for a fresh (possibly different)
	// response. Off by default: a parse failure is permanent for a given
	// response, and re-prompting must be an explicit decision.
	RetrySchemaInvalid bool
}

// DefaultRetryConfig returns the retry policy used when the run config does
// not override it.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
		Multiplier:      2.0,
		UseJitter:       true,
	}
}

var errMaxAttemptsInvalid = errors.New("maxAttempts must be greater than 0")

// NewRetryMiddleware creates retry middleware implementing exponential
// backoff with full jitter. Only failures classified retryable consume
// attempts; everything else surfaces immediately. Provider Retry-After
// guidance takes precedence over computed backoff.
func NewRetryMiddleware(cfg RetryConfig, logger *slog.Logger) (Middleware, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, cfg.MaxAttempts)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "retry")

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			var lastErr error

			for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
				resp, err := next.Handle(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if errors.Is(err, context.Canceled) {
					return nil, err
				}
				if !retryable(err, cfg.RetrySchemaInvalid) {
					return nil, err
				}
				if attempt == cfg.MaxAttempts {
					break
				}

				backoff := calculateBackoff(cfg, attempt, err)
				logger.WarnContext(ctx, "attempt failed, backing off",
					"trace_id", req.TraceID,
					"step", req.Step.String(),
					"attempt", attempt,
					"backoff", backoff,
					"error", err)

				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
			}

			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, cfg.MaxAttempts, lastErr)
		})
	}, nil
}

// calculateBackoff computes the retry delay: exponential growth capped at
// MaxInterval, full jitter when enabled, provider Retry-After winning when
// present. Uses math/rand/v2 for thread-safe jitter.
func calculateBackoff(cfg RetryConfig, attempt int, err error) time.Duration {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if after := transportErr.GetRetryAfter(); after > 0 {
			return after
		}
	}

	backoff := cfg.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	multiplier := cfg.Multiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * multiplier)
		if cfg.MaxInterval > 0 && backoff > cfg.MaxInterval {
			backoff = cfg.MaxInterval
			break
		}
	}

	if cfg.UseJitter {
		jitterMs := rand.Int64N(backoff.Milliseconds() + 1)
		return time.Duration(jitterMs) * time.Millisecond
	}
	return backoff
}
