package domain

import (
	"fmt"
	"sync"
	"time"
)

// Artifact is a staged file belonging to exactly one job
type Artifact struct {
	JobID       string
	Index       int
	Name        string
	Path        string
	Size        int64
	ContentType string
}

// Job is a single generation request. All state changes go through the
// job's own mutex, so transitions within one job are serialized while
// separate jobs never contend.
type Job struct {
	mu        sync.Mutex
	id        string
	status    Status
	inputs    []Artifact
	output    *Artifact
	err       error
	delivered bool
	createdAt time.Time
	updatedAt time.Time
}

// NewJob creates a job in PENDING state
func NewJob(id string, now time.Time) *Job {
	return &Job{
		id:        id,
		status:    StatusPending,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the job identifier
func (j *Job) ID() string {
	return j.id
}

// CreatedAt returns the creation timestamp
func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

// Status returns the current status
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the error that failed the job, if any
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Inputs returns the staged input artifacts in input order
func (j *Job) Inputs() []Artifact {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Artifact, len(j.inputs))
	copy(out, j.inputs)
	return out
}

// Output returns the output artifact reference once the job has succeeded
func (j *Job) Output() (Artifact, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.output == nil {
		return Artifact{}, false
	}
	return *j.output, true
}

// Transition moves the job to the given non-terminal or terminal state
func (j *Job) Transition(to Status, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to, now)
}

func (j *Job) transitionLocked(to Status, now time.Time) error {
	if !CanTransition(j.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.status, to)
	}
	j.status = to
	j.updatedAt = now
	return nil
}

// AddInput records a staged input. Only valid while staging.
func (j *Job) AddInput(a Artifact) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusStaging {
		return fmt.Errorf("%w: cannot stage input in %s", ErrInvalidTransition, j.status)
	}
	j.inputs = append(j.inputs, a)
	return nil
}

// Succeed moves a running job to SUCCEEDED with its single output artifact
func (j *Job) Succeed(output Artifact, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.output != nil {
		return fmt.Errorf("%w: output already recorded", ErrInvalidTransition)
	}
	if err := j.transitionLocked(StatusSucceeded, now); err != nil {
		return err
	}
	j.output = &output
	return nil
}

// Fail moves the job to FAILED and records the cause
func (j *Job) Fail(cause error, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed, now); err != nil {
		return err
	}
	j.err = cause
	return nil
}

// MarkDelivered records that the output has been handed to the caller.
// The result of a job can be delivered once.
func (j *Job) MarkDelivered(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusSucceeded {
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, j.status)
	}
	if j.delivered {
		return ErrResultDelivered
	}
	j.delivered = true
	j.updatedAt = now
	return nil
}

// Snapshot is a read-only view of a job safe to expose to callers
type Snapshot struct {
	JobID      string    `json:"job_id"`
	Status     Status    `json:"status"`
	InputCount int       `json:"input_count"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot returns the current view of the job
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		JobID:      j.id,
		Status:     j.status,
		InputCount: len(j.inputs),
		ErrorKind:  KindOf(j.err),
		Delivered:  j.delivered,
		CreatedAt:  j.createdAt,
		UpdatedAt:  j.updatedAt,
	}
}
