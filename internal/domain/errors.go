package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a request is empty, oversized or malformed
	ErrValidation = errors.New("validation error")

	// ErrStaging is returned when an input artifact could not be written
	ErrStaging = errors.New("staging error")

	// ErrWorkerInvocation is returned when the generation worker could not be launched
	ErrWorkerInvocation = errors.New("worker invocation error")

	// ErrWorkerFailed is returned when the generation worker exits non-zero
	ErrWorkerFailed = errors.New("worker failed")

	// ErrWorkerTimedOut is returned when the generation worker exceeds its timeout
	ErrWorkerTimedOut = errors.New("worker timed out")

	// ErrOutputMissing is returned when the worker reported success but produced nothing
	ErrOutputMissing = errors.New("output missing")

	// ErrStorage is returned on I/O failure reading output or removing artifacts
	ErrStorage = errors.New("storage error")

	// ErrCanceled is returned when the caller abandoned the job before it finished
	ErrCanceled = errors.New("job canceled")

	// ErrJobNotFound is returned when a job identifier is unknown to the orchestrator
	ErrJobNotFound = errors.New("job not found")

	// ErrResultDelivered is returned when a job's output has already been handed out
	ErrResultDelivered = errors.New("result already delivered")

	// ErrInvalidTransition is returned when a job is moved to a state it cannot reach
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// ErrorKind classifies job errors for callers and logs
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindValidation       ErrorKind = "ValidationError"
	KindStaging          ErrorKind = "StagingError"
	KindWorkerInvocation ErrorKind = "WorkerInvocationError"
	KindWorkerFailed     ErrorKind = "WorkerFailed"
	KindWorkerTimedOut   ErrorKind = "WorkerTimedOut"
	KindOutputMissing    ErrorKind = "OutputMissing"
	KindStorage          ErrorKind = "StorageError"
	KindCanceled         ErrorKind = "Canceled"
	KindInternal         ErrorKind = "InternalError"
)

// Surfaceable reports whether errors of this kind may be shown to the caller verbatim
func (k ErrorKind) Surfaceable() bool {
	return k == KindValidation
}

// KindOf maps err onto the error taxonomy. Order matters: a staging error that
// carries a storage cause is still a staging error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	case errors.Is(err, ErrStaging):
		return KindStaging
	case errors.Is(err, ErrWorkerTimedOut):
		return KindWorkerTimedOut
	case errors.Is(err, ErrWorkerFailed):
		return KindWorkerFailed
	case errors.Is(err, ErrWorkerInvocation):
		return KindWorkerInvocation
	case errors.Is(err, ErrOutputMissing):
		return KindOutputMissing
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}

// ValidationError describes why a request was rejected before a job was created
type ValidationError struct {
	Reason   string
	TooLarge bool
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a new validation error
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NewTooLargeError creates a validation error for payloads over a size ceiling
func NewTooLargeError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), TooLarge: true}
}

// WorkerFailedError carries the exit status of a failed generation worker
type WorkerFailedError struct {
	ExitCode   int
	StderrTail string
}

func (e *WorkerFailedError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("worker failed: exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("worker failed: exit code %d: %s", e.ExitCode, e.StderrTail)
}

func (e *WorkerFailedError) Unwrap() error {
	return ErrWorkerFailed
}
