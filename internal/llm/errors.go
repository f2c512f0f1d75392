package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aicats/pmdiag/internal/domain"
)

// ErrorType categorizes transport failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates a deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limiting, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates connectivity failure (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the model service is unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeAuth indicates authentication failure (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypeResponse indicates a structurally broken provider reply,
	// such as an empty choices array (non-retryable).
	ErrorTypeResponse ErrorType = "invalid_response"
)

// ErrRetriesExhausted is returned when the retry budget runs out. The last
// underlying failure is attached via wrapping.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// TransportError captures a classified failure from the model transport.
// It wraps domain.ErrTransport for taxonomy classification.
type TransportError struct {
	Type       ErrorType
	StatusCode int
	Message    string

	// RetryAfter carries provider backpressure guidance when present.
	RetryAfter time.Duration
}

// Error returns the classified failure with status context.
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport %s (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport %s: %s", e.Type, e.Message)
}

// Unwrap ties TransportError into the shared failure taxonomy.
func (e *TransportError) Unwrap() error { return domain.ErrTransport }

// IsRetryable reports whether this failure warrants another attempt.
func (e *TransportError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns provider-specified backoff, or zero when absent.
func (e *TransportError) GetRetryAfter() time.Duration { return e.RetryAfter }

// retryable reports whether err should consume a retry attempt under the
// given policy. Transport failures consult their classification; schema
// failures are retryable only when the policy explicitly says so.
func retryable(err error, retrySchemaInvalid bool) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.IsRetryable()
	}
	if errors.Is(err, domain.ErrSchemaInvalid) {
		return retrySchemaInvalid
	}
	// Context timeouts surface as retryable transport failures; an actual
	// cancellation is checked separately in the retry loop.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
