package engine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/quill/internal/reactive"
)

// HotScope is one entry of a re-run histogram.
type HotScope struct {
	ID        reactive.ScopeID
	Label     string
	Reactions int
}

// String renders "label#id×n", or "#id×n" for unlabeled scopes.
func (h HotScope) String() string {
	return fmt.Sprintf("%s#%d×%d", h.Label, h.ID, h.Reactions)
}

// HotScopes counts re-runs per scope within one tick.
//
// A scope that shows up in nearly every iteration of a diverging tick is
// almost always one half of a feedback cycle (an effect writing a cell the
// same scope reads).
type HotScopes struct {
	counts map[reactive.ScopeID]*HotScope
}

// NewHotScopes creates an empty histogram.
func NewHotScopes() *HotScopes {
	return &HotScopes{counts: make(map[reactive.ScopeID]*HotScope)}
}

// Record counts one re-run of sc.
func (h *HotScopes) Record(sc *reactive.Scope) {
	entry, ok := h.counts[sc.ID()]
	if !ok {
		entry = &HotScope{ID: sc.ID(), Label: sc.Label()}
		h.counts[sc.ID()] = entry
	}
	entry.Reactions++
}

// Count returns the re-runs recorded for id.
func (h *HotScopes) Count(id reactive.ScopeID) int {
	if entry, ok := h.counts[id]; ok {
		return entry.Reactions
	}
	return 0
}

// Len returns the number of distinct scopes recorded.
func (h *HotScopes) Len() int {
	return len(h.counts)
}

// Top returns up to n entries, most re-runs first, ties by scope id.
func (h *HotScopes) Top(n int) []HotScope {
	out := make([]HotScope, 0, len(h.counts))
	for _, entry := range h.counts {
		out = append(out, *entry)
	}
	slices.SortFunc(out, func(a, b HotScope) int {
		if c := cmp.Compare(b.Reactions, a.Reactions); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
