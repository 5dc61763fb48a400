package view

import (
	"errors"
	"fmt"

	"github.com/roach88/quill/internal/reactive"
)

// ErrNoInstance is returned when a hook is called outside a template's
// create function.
var ErrNoInstance = errors.New("hook called outside a template")

// InstanceErrorCode categorizes per-instance failures.
type InstanceErrorCode string

const (
	// ErrCodeStaleHandle indicates access to a disposed cell or scope.
	ErrCodeStaleHandle InstanceErrorCode = "STALE_HANDLE"

	// ErrCodeHookOrder indicates the hook call sequence changed between runs.
	ErrCodeHookOrder InstanceErrorCode = "HOOK_ORDER_VIOLATION"

	// ErrCodeTypeMismatch indicates a view of a different kind replaced the
	// previous one at the same position outside a Dynamic wrapper.
	ErrCodeTypeMismatch InstanceErrorCode = "TYPE_MISMATCH"

	// ErrCodeCreatePanic indicates the create function or an effect panicked.
	ErrCodeCreatePanic InstanceErrorCode = "CREATE_PANIC"
)

// InstanceError is a failure contained to one tree position. It never
// aborts a scheduler pass; it is collected into the pass result.
type InstanceError struct {
	// Code identifies the error category.
	Code InstanceErrorCode

	// Instance is the template name ("root" outside any template).
	Instance string

	// Scope is the instance's tracking scope (0 outside any template).
	Scope reactive.ScopeID

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s: %s (scope=%d): %v", e.Code, e.Instance, e.Scope, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InstanceError) Unwrap() error {
	return e.Err
}

// CodeOf returns the instance error code carried by err, if any.
func CodeOf(err error) (InstanceErrorCode, bool) {
	var ie *InstanceError
	if errors.As(err, &ie) {
		return ie.Code, true
	}
	return "", false
}

// IsTypeMismatch returns true if err is a TYPE_MISMATCH instance error.
func IsTypeMismatch(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeTypeMismatch
}

// IsHookOrderViolation returns true if err is a HOOK_ORDER_VIOLATION
// instance error.
func IsHookOrderViolation(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeHookOrder
}

// IsCreatePanic returns true if err is a CREATE_PANIC instance error.
func IsCreatePanic(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeCreatePanic
}

func classify(err error) InstanceErrorCode {
	switch {
	case reactive.IsHookOrderError(err):
		return ErrCodeHookOrder
	case reactive.IsStaleHandle(err):
		return ErrCodeStaleHandle
	default:
		return ErrCodeCreatePanic
	}
}

// hookFailure carries an error out of a create function through panic so
// that hooks keep value-only signatures.
type hookFailure struct {
	err error
}

func abort(err error) {
	panic(hookFailure{err: err})
}

func recovered(r any) error {
	switch v := r.(type) {
	case hookFailure:
		return v.err
	case error:
		return fmt.Errorf("panic: %w", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}
