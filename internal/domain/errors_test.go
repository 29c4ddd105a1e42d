package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"validation", NewValidationError("no files"), KindValidation},
		{"too large", NewTooLargeError("too big"), KindValidation},
		{"staging wraps storage cause", fmt.Errorf("%w: input 1: %w", ErrStaging, ErrStorage), KindStaging},
		{"worker failed", &WorkerFailedError{ExitCode: 2, StderrTail: "parse error"}, KindWorkerFailed},
		{"timed out", fmt.Errorf("%w after 5s", ErrWorkerTimedOut), KindWorkerTimedOut},
		{"invocation", fmt.Errorf("%w: exec: not found", ErrWorkerInvocation), KindWorkerInvocation},
		{"output missing", ErrOutputMissing, KindOutputMissing},
		{"storage", fmt.Errorf("%w: read: permission denied", ErrStorage), KindStorage},
		{"canceled", fmt.Errorf("%w: %w", ErrCanceled, context.Canceled), KindCanceled},
		{"unknown", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorKind_Surfaceable(t *testing.T) {
	assert.True(t, KindValidation.Surfaceable())
	for _, k := range []ErrorKind{KindStaging, KindWorkerFailed, KindWorkerTimedOut, KindOutputMissing, KindStorage, KindInternal} {
		assert.False(t, k.Surfaceable(), k)
	}
}

func TestWorkerFailedError(t *testing.T) {
	err := &WorkerFailedError{ExitCode: 2, StderrTail: "parse error"}
	assert.Equal(t, "worker failed: exit code 2: parse error", err.Error())
	assert.ErrorIs(t, err, ErrWorkerFailed)

	var wf *WorkerFailedError
	wrapped := fmt.Errorf("job abc: %w", err)
	assert.True(t, errors.As(wrapped, &wf))
	assert.Equal(t, 2, wf.ExitCode)

	assert.Equal(t, "worker failed: exit code 1", (&WorkerFailedError{ExitCode: 1}).Error())
}
