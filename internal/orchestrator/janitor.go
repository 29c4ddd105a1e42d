package orchestrator

import (
	"context"
	"log/slog"
	"time"
)

// Sweep forgets terminal jobs older than the retention period, removing their
// artifacts, and removes any job namespace on disk that has outlived the
// retention period without a known job behind it (leftovers from a previous
// process). It returns the number of jobs and orphans removed.
func (o *Orchestrator) Sweep() int {
	if o.retention <= 0 {
		return 0
	}
	cutoff := o.now().Add(-o.retention)

	known := make(map[string]bool)
	var expired []string

	o.mu.Lock()
	for id, job := range o.jobs {
		snap := job.Snapshot()
		if snap.Status.IsTerminal() && snap.UpdatedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(o.jobs, id)
			continue
		}
		known[id] = true
	}
	o.mu.Unlock()

	for _, id := range expired {
		o.store.Cleanup(id)
	}
	removed := len(expired)

	dirs, err := o.store.ListJobDirs()
	if err != nil {
		o.logger.Error("Janitor failed to list job namespaces",
			slog.Any("error", err),
		)
		return removed
	}
	orphans := 0
	for _, dir := range dirs {
		if known[dir.JobID] || !dir.ModTime.Before(cutoff) {
			continue
		}
		o.store.Cleanup(dir.JobID)
		orphans++
	}
	removed += orphans

	if removed > 0 {
		o.logger.Info("Janitor sweep finished",
			slog.Int("jobs_expired", len(expired)),
			slog.Int("orphans_removed", orphans),
		)
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is canceled
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || o.retention <= 0 {
		o.logger.Info("Janitor disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info("Janitor started",
		slog.Duration("interval", interval),
		slog.Duration("retention", o.retention),
	)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Janitor stopped - context canceled")
			return
		case <-ticker.C:
			o.Sweep()
		}
	}
}
