package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/quill/internal/view"
)

func TestErrorCode(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"instance error", &view.InstanceError{Code: view.ErrCodeTypeMismatch, Instance: "Row", Err: cause}, "TYPE_MISMATCH"},
		{"wrapped instance error", fmt.Errorf("tick 3: %w", &view.InstanceError{Code: view.ErrCodeCreatePanic, Err: cause}), "CREATE_PANIC"},
		{"divergence", &DivergenceError{Tick: 1, Limit: 2}, "DIVERGENCE_EXCEEDED"},
		{"cancelled", NewCancelledError(4, 1, context.Canceled), "TICK_CANCELLED"},
		{"journal", NewJournalError("run", 2, cause), "JOURNAL_WRITE"},
		{"command", NewCommandError(1, 0, cause), "COMMAND_FAILED"},
		{"plain", cause, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	cancelled := NewCancelledError(4, 1, context.Canceled)
	journal := NewJournalError("run", 2, errors.New("disk full"))

	assert.True(t, IsCancelled(cancelled))
	assert.False(t, IsCancelled(journal))
	assert.True(t, IsJournalError(fmt.Errorf("wrapped: %w", journal)))
	assert.False(t, IsJournalError(cancelled))
	assert.True(t, errors.Is(cancelled, context.Canceled))
}
