package view

import (
	"fmt"

	"github.com/roach88/quill/internal/reactive"
)

// Callback is a handle to a function owned by a template instance.
// Handles compare by identity, so passing one through props does not
// defeat memoization, and calling one always runs the function from the
// owner's latest evaluation.
type Callback[A any] struct {
	h *callbackHandle[A]
}

type callbackHandle[A any] struct {
	store    *reactive.Store
	owner    string
	fn       func(A)
	released bool
}

// CreateCallback returns the current instance's callback for this hook
// position, updated to call fn. The handle is released when the instance
// is razed.
func CreateCallback[A any](cx *Cx, fn func(A)) Callback[A] {
	slot, fresh := cx.hook(kindOf[A]("callback"))
	if fresh {
		h := &callbackHandle[A]{store: cx.rt.store, owner: cx.owner.name}
		err := cx.owner.scope.OnDispose(func() {
			h.released = true
			h.fn = nil
		})
		if err != nil {
			abort(err)
		}
		slot.Value = h
	}
	h := slot.Value.(*callbackHandle[A])
	h.fn = fn
	return Callback[A]{h: h}
}

// Call runs the callback outside any tracking scope, so reads made by the
// function do not subscribe whichever template happens to be evaluating.
func (c Callback[A]) Call(arg A) error {
	if !c.Valid() {
		return fmt.Errorf("callback: %w", reactive.ErrStaleHandle)
	}
	prev := c.h.store.Suspend()
	defer c.h.store.Resume(prev)
	c.h.fn(arg)
	return nil
}

// Valid reports whether the owning instance is still live.
func (c Callback[A]) Valid() bool {
	return c.h != nil && !c.h.released
}

// Equal reports whether both handles came from the same hook of the same
// instance.
func (c Callback[A]) Equal(o Callback[A]) bool {
	return c.h == o.h
}

// String names the owning template, for logs.
func (c Callback[A]) String() string {
	if c.h == nil {
		return "callback(nil)"
	}
	return "callback(" + c.h.owner + ")"
}
