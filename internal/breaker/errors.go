// errors.go: Typed errors and outcome classification
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError is returned when a call is rejected without invoking the
// dependency. RetryAfter carries the remaining wait until the next probe so
// callers can back off without string-parsing.
type CircuitOpenError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open, retry after %s", e.Dependency, e.RetryAfter)
}

// CallTimeoutError is returned when the wrapped operation exceeded the
// breaker's call timeout. It counts as a failure.
type CallTimeoutError struct {
	Dependency string
	Timeout    time.Duration
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf("call to %s timed out after %s", e.Dependency, e.Timeout)
}

// IsCircuitOpen reports whether err is a circuit rejection.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// IsCallTimeout reports whether err is a breaker-enforced timeout.
func IsCallTimeout(err error) bool {
	var cte *CallTimeoutError
	return errors.As(err, &cte)
}

// Outcome classifies how a call result affects the breaker.
type Outcome int

const (
	// OutcomeSuccess counts toward closing the circuit.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure counts toward opening the circuit.
	OutcomeFailure
	// OutcomeIgnore affects neither counter (e.g. caller cancellation).
	OutcomeIgnore
)

// Classifier decides which call outcomes count as failures. It is supplied at
// breaker construction, so callers control the taxonomy instead of the
// breaker baking in error types.
type Classifier func(error) Outcome

// DefaultClassifier counts every error as a failure except caller
// cancellation, which counts as neither success nor failure.
func DefaultClassifier(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeIgnore
	default:
		return OutcomeFailure
	}
}
