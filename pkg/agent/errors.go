package agent

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a run is cancelled before any evidence was
// gathered. Cancellation after evidence exists produces a partial report
// instead of an error.
var ErrCancelled = errors.New("run cancelled before any evidence was gathered")

// PlanningError means the planner produced no usable sub-tasks after a retry.
// It is fatal: the run aborts before any evidence is gathered.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string { return fmt.Sprintf("planning failed: %v", e.Err) }
func (e *PlanningError) Unwrap() error { return e.Err }

// AdapterError records a single retrieval source failing for one sub-task.
// It is recovered locally: the executor logs it and continues with the
// remaining adapters.
type AdapterError struct {
	Adapter string
	Query   string
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s failed for query %q: %v", e.Adapter, e.Query, e.Err)
}
func (e *AdapterError) Unwrap() error { return e.Err }

// ScoringError records an unavailable embedding capability. It is recovered
// by falling back to lexical scoring and is never fatal.
type ScoringError struct {
	Err error
}

func (e *ScoringError) Error() string { return fmt.Sprintf("embedding unavailable: %v", e.Err) }
func (e *ScoringError) Unwrap() error { return e.Err }

// SynthesisError means report generation failed even after a retry.
// The run fails rather than returning a malformed report.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("synthesis failed: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }

// criticFailureRationale is recorded when an erroring or unparseable critique
// forces the loop to stop.
const criticFailureRationale = "critic failure, stopping"
