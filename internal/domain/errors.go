package domain

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared across the pipeline. Packages wrap these sentinels
// in their own typed errors so callers can classify with errors.Is.
var (
	// ErrValidationRejected indicates a respondent failed eligibility checks
	// before any external call was made. Recoverable: the respondent is
	// skipped and the rejection logged.
	ErrValidationRejected = errors.New("respondent rejected by validation")

	// ErrTemplate indicates a prompt template references a substitution key
	// absent from its context. Fatal to the step it occurs in.
	ErrTemplate = errors.New("prompt template error")

	// ErrTransport indicates a network, timeout, or rate-limit failure while
	// calling the model. Retryable up to the configured budget.
	ErrTransport = errors.New("judgment transport failure")

	// ErrSchemaInvalid indicates model output that does not match the step's
	// expected shape. Not retried unless explicitly configured.
	ErrSchemaInvalid = errors.New("judgment schema invalid")

	// ErrArithmeticInvariant indicates a computed score left its valid range,
	// which means an upstream parser bug. Always fatal, never clamped.
	ErrArithmeticInvariant = errors.New("arithmetic invariant violation")
)

// InvariantError reports a computed or loaded value that violates a domain
// invariant. It wraps ErrArithmeticInvariant for taxonomy classification.
type InvariantError struct {
	Field   string
	Value   float64
	Message string
}

// Error returns the invariant violation with field context.
func (e *InvariantError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invariant violated for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invariant violated for %s: value %v out of range", e.Field, e.Value)
}

// Unwrap ties InvariantError into the shared failure taxonomy.
func (e *InvariantError) Unwrap() error { return ErrArithmeticInvariant }
