package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("wf", ValidationIssue{Message: "bad"}), ErrorKindValidation},
		{"wrapped validation", fmt.Errorf("trigger: %w", NewValidationError("wf")), ErrorKindValidation},
		{"node", &NodeExecutionError{NodeID: "n"}, ErrorKindNodeExecution},
		{"store", NewStoreError("save", "k", errors.New("disk")), ErrorKindStore},
		{"timeout", &TimeoutError{ExecutionID: "e", Limit: time.Second}, ErrorKindTimeout},
		{"cancel", &CancellationError{ExecutionID: "e"}, ErrorKindCancellation},
		{"execution error", &ExecutionError{Kind: ErrorKindValidation, Message: "max iterations exceeded"}, ErrorKindValidation},
		{"other", errors.New("boom"), ErrorKindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	notFound := NewStoreError("load", "execution:data:x", ErrNotFound)
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsStoreError(notFound))
	assert.False(t, IsValidationError(notFound))

	validation := NewValidationError("wf", ValidationIssue{NodeID: "a", Message: "unknown node type"})
	assert.True(t, IsValidationError(validation))
	assert.ErrorIs(t, validation, ErrInvalidInput)
	assert.Contains(t, validation.Error(), "node a: unknown node type")

	assert.True(t, IsTimeout(&TimeoutError{}))
	assert.ErrorIs(t, &CancellationError{}, ErrCanceled)
	assert.True(t, IsConflict(fmt.Errorf("resume: %w", ErrConflict)))
}
