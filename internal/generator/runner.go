package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cuongbtq/papergen/internal/domain"
)

const (
	defaultStderrTailBytes = 2048
	defaultWaitDelay       = 5 * time.Second
)

// OutcomeKind is the classification of a finished worker run
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "COMPLETED"
	OutcomeFailed    OutcomeKind = "FAILED"
	OutcomeTimedOut  OutcomeKind = "TIMED_OUT"
)

// Outcome is the result of one worker invocation. The exit code alone decides
// between Completed and Failed; stderr never does.
type Outcome struct {
	Kind       OutcomeKind
	ExitCode   int
	Stdout     []byte
	Stderr     []byte
	StderrTail string
	Duration   time.Duration
}

// Err converts a non-completed outcome into a job error
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeCompleted:
		return nil
	case OutcomeTimedOut:
		return fmt.Errorf("%w after %s", domain.ErrWorkerTimedOut, o.Duration.Round(time.Millisecond))
	default:
		return &domain.WorkerFailedError{ExitCode: o.ExitCode, StderrTail: o.StderrTail}
	}
}

// RunnerConfig holds worker process settings
type RunnerConfig struct {
	StderrTailBytes int
	// WaitDelay bounds how long output pipes are drained after the worker is killed
	WaitDelay time.Duration
}

// Runner launches generation workers as external processes. It never retries.
type Runner struct {
	logger          *slog.Logger
	stderrTailBytes int
	waitDelay       time.Duration
}

// NewRunner creates a new Runner
func NewRunner(cfg RunnerConfig, logger *slog.Logger) *Runner {
	tail := cfg.StderrTailBytes
	if tail <= 0 {
		tail = defaultStderrTailBytes
	}
	waitDelay := cfg.WaitDelay
	if waitDelay <= 0 {
		waitDelay = defaultWaitDelay
	}
	return &Runner{
		logger:          logger,
		stderrTailBytes: tail,
		waitDelay:       waitDelay,
	}
}

// Invoke runs the worker described by d and waits for it, up to timeout. On
// timeout the worker's process group is killed and a TimedOut outcome is
// returned. If ctx is canceled first the worker is killed the same way and
// ErrCanceled is returned. Launch failures return ErrWorkerInvocation.
func (r *Runner) Invoke(ctx context.Context, d Descriptor, timeout time.Duration) (Outcome, error) {
	if timeout <= 0 {
		return Outcome{}, fmt.Errorf("%w: a positive timeout is required", domain.ErrWorkerInvocation)
	}
	if d.Command == "" {
		return Outcome{}, fmt.Errorf("%w: empty command", domain.ErrWorkerInvocation)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, d.Command, d.Args...)
	cmd.Dir = d.Dir
	cmd.Env = append(os.Environ(), d.Env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	isolateProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = r.waitDelay

	r.logger.Info("Launching generation worker",
		slog.String("job_id", d.JobID),
		slog.String("command", d.Command),
		slog.Int("arg_count", len(d.Args)),
		slog.String("dir", d.Dir),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", domain.ErrWorkerInvocation, err)
	}
	waitErr := cmd.Wait()
	duration := time.Since(start)

	outcome := Outcome{
		ExitCode:   -1,
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		StderrTail: tail(stderr.Bytes(), r.stderrTailBytes),
		Duration:   duration,
	}
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}

	if len(outcome.Stdout) > 0 {
		r.logger.Debug("Generation worker stdout",
			slog.String("job_id", d.JobID),
			slog.String("stdout", tail(outcome.Stdout, r.stderrTailBytes)),
		)
	}

	// Parent cancellation wins over our own deadline: the caller is gone.
	if ctx.Err() != nil {
		r.logger.Warn("Generation worker killed - caller canceled",
			slog.String("job_id", d.JobID),
			slog.Duration("duration", duration),
		)
		return outcome, fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err())
	}

	if waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome.Kind = OutcomeTimedOut
		r.logger.Warn("Generation worker timed out and was killed",
			slog.String("job_id", d.JobID),
			slog.Duration("timeout", timeout),
			slog.String("stderr_tail", outcome.StderrTail),
		)
		return outcome, nil
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		outcome.Kind = OutcomeCompleted
	case errors.As(waitErr, &exitErr):
		outcome.Kind = OutcomeFailed
	case errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success():
		// The worker exited 0 but left something holding its output pipes.
		outcome.Kind = OutcomeCompleted
		r.logger.Warn("Generation worker left output pipes open after exit",
			slog.String("job_id", d.JobID),
		)
	default:
		return outcome, fmt.Errorf("%w: %w", domain.ErrWorkerInvocation, waitErr)
	}

	if outcome.Kind == OutcomeCompleted {
		if outcome.StderrTail != "" {
			r.logger.Warn("Generation worker wrote to stderr",
				slog.String("job_id", d.JobID),
				slog.String("stderr_tail", outcome.StderrTail),
			)
		}
		r.logger.Info("Generation worker completed",
			slog.String("job_id", d.JobID),
			slog.Duration("duration", duration),
		)
		return outcome, nil
	}

	r.logger.Error("Generation worker failed",
		slog.String("job_id", d.JobID),
		slog.Int("exit_code", outcome.ExitCode),
		slog.String("stderr_tail", outcome.StderrTail),
		slog.Duration("duration", duration),
	)
	return outcome, nil
}

// tail returns the last n bytes of b as trimmed, valid UTF-8
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
		// skip a rune split by the cut
		for len(b) > 0 && !utf8.RuneStart(b[0]) {
			b = b[1:]
		}
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}
