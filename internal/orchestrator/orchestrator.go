package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/cuongbtq/papergen/internal/generator"
	"github.com/cuongbtq/papergen/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// CleanupPolicy decides when a delivered job's artifacts are removed
type CleanupPolicy string

const (
	// CleanupImmediate removes artifacts as soon as the result is delivered
	CleanupImmediate CleanupPolicy = "immediate"
	// CleanupTTL leaves delivered artifacts for the janitor
	CleanupTTL CleanupPolicy = "ttl"
)

// ArtifactStore is the job-scoped staging area used by the orchestrator
type ArtifactStore interface {
	CreateJobDir(jobID string) error
	JobDir(jobID string) (string, error)
	Stage(ctx context.Context, jobID string, index int, data []byte) (domain.Artifact, error)
	ResolveOutputPath(jobID string) (string, error)
	SealOutput(jobID string) (domain.Artifact, error)
	ReadOutput(jobID string) ([]byte, error)
	Cleanup(jobID string)
	ListJobDirs() ([]storage.JobDir, error)
}

// WorkerInvoker runs the external generation worker
type WorkerInvoker interface {
	Invoke(ctx context.Context, d generator.Descriptor, timeout time.Duration) (generator.Outcome, error)
}

// Config holds orchestrator configuration
type Config struct {
	Logger   *slog.Logger
	Store    ArtifactStore
	Invoker  WorkerInvoker
	Template generator.Template
	// Timeout is the hard wall-clock limit for one worker run
	Timeout time.Duration
	// MaxConcurrent bounds simultaneously running workers; 0 means unbounded
	MaxConcurrent int
	CleanupPolicy CleanupPolicy
	// Retention is how long terminal jobs are remembered and undelivered
	// artifacts are kept before the janitor removes them
	Retention time.Duration
}

// Orchestrator owns the lifecycle of generation jobs. Jobs run on the
// caller's goroutine and never wait on each other, apart from the optional
// admission limit on running workers.
type Orchestrator struct {
	logger    *slog.Logger
	store     ArtifactStore
	invoker   WorkerInvoker
	template  generator.Template
	timeout   time.Duration
	limiter   *semaphore.Weighted
	policy    CleanupPolicy
	retention time.Duration

	mu   sync.Mutex
	jobs map[string]*domain.Job

	now   func() time.Time
	newID func() string
}

// New creates a new Orchestrator
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if cfg.Invoker == nil {
		return nil, errors.New("orchestrator: invoker is required")
	}
	if cfg.Template.Command == "" {
		return nil, errors.New("orchestrator: worker command is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("orchestrator: worker timeout must be greater than 0")
	}

	policy := cfg.CleanupPolicy
	switch policy {
	case "":
		policy = CleanupImmediate
	case CleanupImmediate, CleanupTTL:
	default:
		return nil, fmt.Errorf("orchestrator: unknown cleanup policy %q", policy)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		logger:    logger,
		store:     cfg.Store,
		invoker:   cfg.Invoker,
		template:  cfg.Template,
		timeout:   cfg.Timeout,
		policy:    policy,
		retention: cfg.Retention,
		jobs:      make(map[string]*domain.Job),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	if cfg.MaxConcurrent > 0 {
		o.limiter = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return o, nil
}

// Submit runs one job end to end: stage inputs, invoke the worker, confirm
// the output. It returns the job in a terminal state. The returned error is
// the job's failure cause and is nil when the job succeeded. Canceling ctx
// kills a running worker and fails the job with ErrCanceled.
func (o *Orchestrator) Submit(ctx context.Context, inputs [][]byte) (*domain.Job, error) {
	if len(inputs) == 0 {
		return nil, domain.NewValidationError("at least one document is required")
	}

	job := domain.NewJob(o.newID(), o.now())
	o.register(job)

	logger := o.logger.With(slog.String("job_id", job.ID()))
	logger.Info("Job created",
		slog.Int("input_count", len(inputs)),
	)

	// PENDING -> STAGING
	if err := job.Transition(domain.StatusStaging, o.now()); err != nil {
		return o.fail(job, logger, err)
	}
	if err := o.store.CreateJobDir(job.ID()); err != nil {
		return o.fail(job, logger, fmt.Errorf("%w: %w", domain.ErrStaging, err))
	}
	for i, data := range inputs {
		artifact, err := o.store.Stage(ctx, job.ID(), i, data)
		if err != nil {
			if ctx.Err() != nil {
				return o.fail(job, logger, fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err()))
			}
			return o.fail(job, logger, fmt.Errorf("%w: input %d: %w", domain.ErrStaging, i, err))
		}
		if err := job.AddInput(artifact); err != nil {
			return o.fail(job, logger, err)
		}
	}

	// Admission: wait for a worker slot once every input is on disk
	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx, 1); err != nil {
			return o.fail(job, logger, fmt.Errorf("%w: waiting for worker slot: %w", domain.ErrCanceled, err))
		}
		defer o.limiter.Release(1)
	}

	// STAGING -> RUNNING
	descriptor, err := o.describe(job)
	if err != nil {
		return o.fail(job, logger, err)
	}
	if err := job.Transition(domain.StatusRunning, o.now()); err != nil {
		return o.fail(job, logger, err)
	}
	logger.Info("Job running",
		slog.String("command", descriptor.Command),
		slog.Duration("timeout", o.timeout),
	)

	outcome, err := o.invoker.Invoke(ctx, descriptor, o.timeout)
	if err != nil {
		if !errors.Is(err, domain.ErrCanceled) && !errors.Is(err, domain.ErrWorkerInvocation) {
			err = fmt.Errorf("%w: %w", domain.ErrWorkerInvocation, err)
		}
		return o.fail(job, logger, err)
	}
	if err := outcome.Err(); err != nil {
		return o.fail(job, logger, err)
	}

	// The worker's exit code is not trusted on its own: the output must exist.
	output, err := o.store.SealOutput(job.ID())
	if err != nil {
		return o.fail(job, logger, err)
	}

	// RUNNING -> SUCCEEDED
	if err := job.Succeed(output, o.now()); err != nil {
		return o.fail(job, logger, err)
	}

	logger.Info("Job succeeded",
		slog.Int64("output_size", output.Size),
		slog.String("content_type", output.ContentType),
		slog.Duration("worker_duration", outcome.Duration),
	)
	return job, nil
}

// describe builds the invocation descriptor from the job's staged inputs
func (o *Orchestrator) describe(job *domain.Job) (generator.Descriptor, error) {
	dir, err := o.store.JobDir(job.ID())
	if err != nil {
		return generator.Descriptor{}, err
	}
	outputPath, err := o.store.ResolveOutputPath(job.ID())
	if err != nil {
		return generator.Descriptor{}, err
	}

	staged := job.Inputs()
	paths := make([]string, len(staged))
	for i, a := range staged {
		paths[i] = a.Path
	}
	return o.template.Describe(job.ID(), dir, outputPath, paths), nil
}

// fail moves the job to FAILED and removes its artifacts right away
func (o *Orchestrator) fail(job *domain.Job, logger *slog.Logger, cause error) (*domain.Job, error) {
	if err := job.Fail(cause, o.now()); err != nil {
		logger.Error("Failed to record job failure",
			slog.Any("error", err),
			slog.Any("cause", cause),
		)
	}

	logger.Error("Job failed",
		slog.String("error_kind", string(domain.KindOf(cause))),
		slog.Any("error", cause),
	)

	o.store.Cleanup(job.ID())
	return job, cause
}

// Deliver hands out the output of a succeeded job. A result is delivered
// once; later calls return ErrResultDelivered.
func (o *Orchestrator) Deliver(jobID string) ([]byte, domain.Artifact, error) {
	job, err := o.lookup(jobID)
	if err != nil {
		return nil, domain.Artifact{}, err
	}

	if status := job.Status(); status != domain.StatusSucceeded {
		if cause := job.Err(); cause != nil {
			return nil, domain.Artifact{}, cause
		}
		return nil, domain.Artifact{}, fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, status)
	}
	if err := job.MarkDelivered(o.now()); err != nil {
		return nil, domain.Artifact{}, err
	}

	output, _ := job.Output()
	data, err := o.store.ReadOutput(jobID)
	if err != nil {
		o.logger.Error("Failed to read job output",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		o.store.Cleanup(jobID)
		return nil, domain.Artifact{}, err
	}

	if o.policy == CleanupImmediate {
		o.store.Cleanup(jobID)
	}

	o.logger.Info("Job result delivered",
		slog.String("job_id", jobID),
		slog.Int("size", len(data)),
	)
	return data, output, nil
}

// Discard drops the artifacts of a job whose result will not be delivered,
// for example because the caller went away
func (o *Orchestrator) Discard(jobID string) {
	o.logger.Info("Discarding job artifacts",
		slog.String("job_id", jobID),
	)
	o.store.Cleanup(jobID)
}

// Get returns a snapshot of a known job
func (o *Orchestrator) Get(jobID string) (domain.Snapshot, error) {
	job, err := o.lookup(jobID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// Stats counts known jobs by status
func (o *Orchestrator) Stats() map[domain.Status]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := make(map[domain.Status]int)
	for _, job := range o.jobs {
		stats[job.Status()]++
	}
	return stats
}

func (o *Orchestrator) register(job *domain.Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs[job.ID()] = job
}

func (o *Orchestrator) lookup(jobID string) (*domain.Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return job, nil
}
