package reactive

// HookSlot is the per-call-site state of one hook call. Slots are indexed by
// call order within an evaluation.
type HookSlot struct {
	Kind  string
	Value any
}

type hookTable struct {
	slots  []*HookSlot
	cursor int
	sealed bool
}

// NextHook returns the slot for the next hook call of this evaluation.
//
// On the first successful evaluation slots are appended and fresh is true.
// Once the table is sealed (see CheckHooks) every later evaluation must
// request the same kinds in the same order; a mismatch or an extra call
// returns a HookOrderError.
func (sc *Scope) NextHook(kind string) (slot *HookSlot, fresh bool, err error) {
	if sc.disposed {
		return nil, false, staleScope(sc.id)
	}
	h := &sc.hooks
	i := h.cursor
	if i < len(h.slots) {
		slot = h.slots[i]
		if slot.Kind != kind {
			return nil, false, &HookOrderError{Slot: i, Want: slot.Kind, Got: kind}
		}
		h.cursor++
		return slot, false, nil
	}
	if h.sealed {
		return nil, false, &HookOrderError{Slot: i, Got: kind}
	}
	slot = &HookSlot{Kind: kind}
	h.slots = append(h.slots, slot)
	h.cursor++
	return slot, true, nil
}

// CheckHooks validates the hook count of the evaluation that just finished
// and seals the table after the first one.
func (sc *Scope) CheckHooks() error {
	h := &sc.hooks
	if h.sealed && h.cursor != len(h.slots) {
		return &HookOrderError{Slot: h.cursor, Want: h.slots[h.cursor].Kind}
	}
	h.sealed = true
	return nil
}

// DiscardHooks drops unsealed slots after a failed first evaluation.
func (sc *Scope) DiscardHooks() {
	if !sc.hooks.sealed {
		sc.hooks = hookTable{}
	}
}

// HookCount returns the number of recorded hook slots.
func (sc *Scope) HookCount() int {
	return len(sc.hooks.slots)
}
