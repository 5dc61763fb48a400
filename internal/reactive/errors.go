package reactive

import (
	"errors"
	"fmt"
)

// ErrStaleHandle is returned for any operation on a cell or scope after it
// has been disposed.
var ErrStaleHandle = errors.New("stale handle")

// ErrNestedScope is returned by Begin when another scope is already the
// active recorder.
var ErrNestedScope = errors.New("tracking scope already active")

// HookOrderError reports that a template called its context hooks in a
// different order, or a different number of times, than on its first run.
type HookOrderError struct {
	// Slot is the index of the hook call that diverged.
	Slot int

	// Want is the hook kind recorded on the first run ("" if the slot did
	// not exist).
	Want string

	// Got is the hook kind requested now ("" if the run ended early).
	Got string
}

// Error implements the error interface.
func (e *HookOrderError) Error() string {
	switch {
	case e.Want == "":
		return fmt.Sprintf("hook order violation: unexpected %s hook at slot %d", e.Got, e.Slot)
	case e.Got == "":
		return fmt.Sprintf("hook order violation: %s hook at slot %d was not called", e.Want, e.Slot)
	default:
		return fmt.Sprintf("hook order violation: slot %d was %s, now %s", e.Slot, e.Want, e.Got)
	}
}

// IsStaleHandle returns true if err wraps ErrStaleHandle.
func IsStaleHandle(err error) bool {
	return errors.Is(err, ErrStaleHandle)
}

// IsHookOrderError returns true if err is or wraps a HookOrderError.
func IsHookOrderError(err error) bool {
	var he *HookOrderError
	return errors.As(err, &he)
}

func staleCell(id CellID) error {
	return fmt.Errorf("cell %s: %w", id, ErrStaleHandle)
}

func staleScope(id ScopeID) error {
	return fmt.Errorf("scope %d: %w", id, ErrStaleHandle)
}
