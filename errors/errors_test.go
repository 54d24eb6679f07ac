package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Format(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "orchestrator", "RunCycle", "adapter join")

	require.Error(t, err)
	assert.Equal(t, "orchestrator.RunCycle: adapter join failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{
			name:      "wrapped transient",
			err:       WrapTransient(stderrors.New("x"), "dispatcher", "send", "email delivery"),
			transient: true,
		},
		{
			name:    "wrapped invalid",
			err:     WrapInvalid(stderrors.New("x"), "validator", "Validate", "severity check"),
			invalid: true,
		},
		{
			name:  "wrapped fatal",
			err:   WrapFatal(stderrors.New("x"), "registry", "Load", "snapshot decode"),
			fatal: true,
		},
		{
			name:      "adapter timeout variable",
			err:       ErrAdapterTimeout,
			transient: true,
		},
		{
			name:      "context deadline",
			err:       context.DeadlineExceeded,
			transient: true,
		},
		{
			name:    "invalid severity variable",
			err:     ErrInvalidSeverity,
			invalid: true,
		},
		{
			name:  "corrupted snapshot variable",
			err:   ErrSnapshotCorrupted,
			fatal: true,
		},
		{
			name:      "message pattern match",
			err:       stderrors.New("dial tcp: connection refused"),
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err), "IsTransient")
			assert.Equal(t, tt.invalid, IsInvalid(tt.err), "IsInvalid")
			assert.Equal(t, tt.fatal, IsFatal(tt.err), "IsFatal")
		})
	}
}

func TestClassify_WrappedVariables(t *testing.T) {
	// Classification must survive fmt.Errorf wrapping
	err := fmt.Errorf("subscriber: %w", ErrTriggerRejected)
	assert.Equal(t, ErrorInvalid, Classify(err))

	err = fmt.Errorf("registry: %w", ErrSnapshotCorrupted)
	assert.Equal(t, ErrorFatal, Classify(err))

	assert.Equal(t, ErrorTransient, Classify(stderrors.New("something else")))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	err := WrapTransient(ErrConnectionLost, "natsclient", "Publish", "publish")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "natsclient", ce.Component)
	assert.Equal(t, "Publish", ce.Operation)
	assert.True(t, stderrors.Is(err, ErrConnectionLost))
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
