package core

import (
	"errors"
	"fmt"
)

// ErrAborted signals that a processing cycle was cancelled because newer
// events arrived for the same conversation. It is not a failure: the queue
// reacts by running cleanup and re-batching the buffer.
var ErrAborted = errors.New("execution aborted")

// TransientError wraps a failure that is expected to succeed on a later
// attempt (rate limits, momentary network loss). Agents may retry it within
// their own iteration budget; the queue never retries it.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PlanValidationError describes a structurally invalid task plan returned by
// the planning model. The orchestrator degrades to a single default task
// instead of failing the cycle.
type PlanValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *PlanValidationError) Error() string { return "invalid task plan: " + e.Reason }

// AgentIterationError records an unexpected failure inside one agent
// iteration. The failing agent's run is marked failed; the orchestrator
// proceeds without its result.
type AgentIterationError struct {
	AgentName string
	Iteration int
	Err       error
}

// Error implements the error interface.
func (e *AgentIterationError) Error() string {
	return fmt.Sprintf("agent %s iteration %d: %v", e.AgentName, e.Iteration, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *AgentIterationError) Unwrap() error { return e.Err }
