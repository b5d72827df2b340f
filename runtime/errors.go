// Package runtime implements the parallel transcoding orchestrator: batch
// partitioning, execution context supervision, progress aggregation, and
// deterministic container reassembly.
package runtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrValidation indicates the input is not a well-formed container.
	// Surfaced immediately; no contexts are spawned.
	ErrValidation = errors.New("invalid archive")

	// ErrImageConversion indicates a single file's transcode failed.
	// Recovered at file granularity; never rejects the overall call.
	ErrImageConversion = errors.New("image conversion failed")

	// ErrExecutionContext indicates a context itself faulted or could not
	// be communicated with. Fatal: the whole operation aborts.
	ErrExecutionContext = errors.New("execution context fault")

	// ErrUnknown wraps any non-taxonomy failure with a generic message
	// while preserving the underlying error for logging.
	ErrUnknown = errors.New("unknown error")
)

// OpError wraps an underlying error with taxonomy classification.
// It preserves the original error in the chain for errors.As inspection.
type OpError struct {
	// Kind is the sentinel for classification (e.g. ErrValidation).
	Kind error
	// Op is the operation that failed (e.g. "decode", "dispatch").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *OpError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapValidation classifies an archive decode failure.
func WrapValidation(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Kind: ErrValidation, Op: op, Err: err}
}

// WrapContextFault classifies a context-level fatal failure.
func WrapContextFault(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Kind: ErrExecutionContext, Op: op, Err: err}
}

// WrapUnknown classifies anything outside the taxonomy.
func WrapUnknown(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Kind: ErrUnknown, Op: op, Err: err}
}
