package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/papergen/internal/domain"
)

// GenericFailureMessage is what callers see for every internal error kind
const GenericFailureMessage = "Failed to generate paper"

// StatusClientClosed is reported when the caller went away before the result was ready
const StatusClientClosed = 499

// JobRunner is the part of the orchestrator the gateway drives
type JobRunner interface {
	Submit(ctx context.Context, inputs [][]byte) (*domain.Job, error)
	Deliver(jobID string) ([]byte, domain.Artifact, error)
	Discard(jobID string)
}

// Result is a delivered job output
type Result struct {
	JobID       string
	Data        []byte
	ContentType string
}

// Service decodes requests into jobs and jobs into results, independent of transport
type Service struct {
	logger *slog.Logger
	runner JobRunner
	limits Limits
}

// NewService creates a new gateway Service
func NewService(runner JobRunner, limits Limits, logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
		runner: runner,
		limits: limits,
	}
}

// Limits returns the configured request limits
func (s *Service) Limits() Limits {
	return s.limits
}

// Generate validates items, runs a job over them in order and returns its
// output. Validation happens before any job exists.
func (s *Service) Generate(ctx context.Context, items []Item) (*Result, error) {
	if err := s.limits.Validate(items); err != nil {
		s.logger.Info("Request rejected",
			slog.Any("error", err),
		)
		return nil, err
	}

	inputs := make([][]byte, len(items))
	for i, item := range items {
		inputs[i] = item.Data
	}

	job, err := s.runner.Submit(ctx, inputs)
	if err != nil {
		attrs := []any{
			slog.String("error_kind", string(domain.KindOf(err))),
			slog.Any("error", err),
		}
		if job != nil {
			attrs = append(attrs, slog.String("job_id", job.ID()))
		}
		var wf *domain.WorkerFailedError
		if errors.As(err, &wf) {
			attrs = append(attrs,
				slog.Int("exit_code", wf.ExitCode),
				slog.String("stderr_tail", wf.StderrTail),
			)
		}
		s.logger.Error("Generation job failed", attrs...)
		return nil, err
	}

	// Nobody is left to receive the result.
	if ctx.Err() != nil {
		s.runner.Discard(job.ID())
		return nil, fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err())
	}

	data, output, err := s.runner.Deliver(job.ID())
	if err != nil {
		s.logger.Error("Failed to deliver job result",
			slog.String("job_id", job.ID()),
			slog.String("error_kind", string(domain.KindOf(err))),
			slog.Any("error", err),
		)
		return nil, err
	}

	return &Result{
		JobID:       job.ID(),
		Data:        data,
		ContentType: output.ContentType,
	}, nil
}

// Failure is the caller-facing form of an error
type Failure struct {
	Status  int
	Kind    domain.ErrorKind
	Message string
}

// DescribeFailure maps an error to a caller-safe status and message. Only
// validation errors are surfaced verbatim.
func DescribeFailure(err error) Failure {
	kind := domain.KindOf(err)
	f := Failure{
		Status:  http.StatusInternalServerError,
		Kind:    kind,
		Message: GenericFailureMessage,
	}

	switch kind {
	case domain.KindValidation:
		f.Status = http.StatusBadRequest
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			f.Message = ve.Reason
			if ve.TooLarge {
				f.Status = http.StatusRequestEntityTooLarge
			}
		} else {
			f.Message = err.Error()
		}
	case domain.KindCanceled:
		f.Status = StatusClientClosed
	case domain.KindWorkerTimedOut:
		f.Status = http.StatusGatewayTimeout
	}
	return f
}
