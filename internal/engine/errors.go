package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/quill/internal/view"
)

// RuntimeError represents an error detected while driving a tick.
//
// Runtime errors include:
//   - Divergence: the dirty set stopped shrinking for too many passes
//   - Cancellation: the tick's context ended before convergence
//   - Journal write: the pass could not be recorded
//   - Command failure: a host command returned an error
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the journaled run, if any.
	RunID string

	// Tick is the pass during which the error occurred.
	Tick int64

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDivergenceExceeded indicates the divergence limit was exceeded.
	ErrCodeDivergenceExceeded RuntimeErrorCode = "DIVERGENCE_EXCEEDED"

	// ErrCodeTickCancelled indicates the context ended mid-tick.
	ErrCodeTickCancelled RuntimeErrorCode = "TICK_CANCELLED"

	// ErrCodeJournalWrite indicates the pass journal rejected a write.
	ErrCodeJournalWrite RuntimeErrorCode = "JOURNAL_WRITE"

	// ErrCodeCommandFailed indicates a host command returned an error.
	ErrCodeCommandFailed RuntimeErrorCode = "COMMAND_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RunID != "" {
		msg = fmt.Sprintf("%s (run=%s, tick=%d)", msg, e.RunID, e.Tick)
	} else if e.Tick != 0 {
		msg = fmt.Sprintf("%s (tick=%d)", msg, e.Tick)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsDivergenceError returns true if the error reports exceeded divergence.
// Matches both RuntimeError with ErrCodeDivergenceExceeded and DivergenceError.
// Uses errors.As to handle wrapped errors.
func IsDivergenceError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeDivergenceExceeded {
		return true
	}
	var de *DivergenceError
	return errors.As(err, &de)
}

// IsCancelled returns true if the tick was cancelled by its context.
func IsCancelled(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeTickCancelled
	}
	return false
}

// IsJournalError returns true if the pass journal rejected a write.
func IsJournalError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeJournalWrite
	}
	return false
}

// NewCancelledError creates a RuntimeError for a cancelled tick.
func NewCancelledError(tick int64, iterations int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTickCancelled,
		Message: "tick cancelled before convergence",
		Tick:    tick,
		Details: map[string]string{
			"iterations": fmt.Sprintf("%d", iterations),
		},
		Err: cause,
	}
}

// NewJournalError creates a RuntimeError for a failed journal write.
func NewJournalError(runID string, tick int64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeJournalWrite,
		Message: "journal write failed",
		RunID:   runID,
		Tick:    tick,
		Err:     cause,
	}
}

// NewCommandError creates a RuntimeError for a failed host command.
func NewCommandError(tick int64, index int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCommandFailed,
		Message: fmt.Sprintf("command %d failed", index),
		Tick:    tick,
		Err:     cause,
	}
}

// ErrorCode classifies an error reported during a tick: the instance error
// code for reconciler failures, the runtime error code for scheduler
// failures, and "UNKNOWN" otherwise.
func ErrorCode(err error) string {
	var ie *view.InstanceError
	if errors.As(err, &ie) {
		return string(ie.Code)
	}
	var de *DivergenceError
	if errors.As(err, &de) {
		return string(de.Code())
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "UNKNOWN"
}
