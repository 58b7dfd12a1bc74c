// pending_jobs_runner.go implements the PendingJobRunner background job, which drains the
// pending jobs queue of object store cleanups. A run processes jobs oldest first and stops at
// the first failure; the failed job keeps its place at the head of the queue and is retried on
// the next tick.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/pendingjobs"
	"github.com/IBM/taxinomitis-sub001/internal/telemetry"
)

// JobQueue is the subset of pendingjobs.Queue used by the runner
type JobQueue interface {
	DequeueOne(ctx context.Context) (*models.PendingJob, error)
	Complete(ctx context.Context, job *models.PendingJob) error
	RecordFailure(ctx context.Context, job *models.PendingJob) (*models.PendingJob, error)
}

// JobProcessor executes a single pending job
type JobProcessor interface {
	Process(ctx context.Context, job *models.PendingJob) error
}

// PendingJobRunner periodically drains the pending jobs queue
type PendingJobRunner struct {
	queue     JobQueue
	processor JobProcessor
	clock     clockwork.Clock
	interval  time.Duration
	longRun   time.Duration
	stopChan  chan struct{}

	// runMu stops a manual drain overlapping a scheduled one
	runMu sync.Mutex
}

// NewPendingJobRunner creates a new pending jobs runner
func NewPendingJobRunner(queue JobQueue, processor JobProcessor, cfg *config.PendingJobsConfig, clock clockwork.Clock) *PendingJobRunner {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Hour
	}
	longRun := cfg.LongRunWarning
	if longRun <= 0 {
		longRun = 3 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PendingJobRunner{
		queue:     queue,
		processor: processor,
		clock:     clock,
		interval:  interval,
		longRun:   longRun,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the drain loop. It runs once immediately, then on every tick
// until ctx is cancelled or Stop is called.
func (r *PendingJobRunner) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("pending jobs runner started", "interval", r.interval)

	r.run(ctx)

	for {
		select {
		case <-ticker.Chan():
			r.run(ctx)
		case <-r.stopChan:
			slog.Info("pending jobs runner stopped")
			return
		case <-ctx.Done():
			slog.Info("pending jobs runner context cancelled")
			return
		}
	}
}

// Stop stops the drain loop
func (r *PendingJobRunner) Stop() {
	close(r.stopChan)
}

func (r *PendingJobRunner) run(ctx context.Context) {
	processed, err := r.RunOnce(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("pending jobs run failed", "processed", processed, "error", err)
	}
}

// RunOnce drains the queue until it is empty or a job fails, and returns the
// number of jobs completed.
func (r *PendingJobRunner) RunOnce(ctx context.Context) (int, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := r.clock.Now()
	defer func() {
		elapsed := r.clock.Since(start)
		telemetry.PendingJobRunDuration.Observe(elapsed.Seconds())
		if elapsed > r.longRun {
			slog.Warn("pending jobs run took longer than expected", "duration", elapsed, "threshold", r.longRun)
		}
	}()

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		job, err := r.queue.DequeueOne(ctx)
		if err != nil {
			return processed, err
		}
		if job == nil {
			if processed > 0 {
				slog.Info("pending jobs run completed", "processed", processed)
			}
			return processed, nil
		}

		if err := r.processor.Process(ctx, job); err != nil {
			telemetry.PendingJobAttemptsTotal.WithLabelValues(job.JobType.String(), "failure").Inc()
			updated, recErr := r.queue.RecordFailure(ctx, job)
			if recErr != nil {
				slog.Error("pending job failed", "job_id", job.ID, "job_type", job.JobType.String(), "error", err)
				return processed, recErr
			}
			slog.Error("pending job failed", "job_id", updated.ID, "job_type", updated.JobType.String(),
				"attempts", updated.Attempts, "last_attempt", updated.LastAttempt.Time, "error", err)

			var invalid *pendingjobs.ValidationError
			if errors.As(err, &invalid) {
				slog.Error("pending job will never succeed", "job_id", job.ID, "missing", invalid.Missing)
			}
			return processed, err
		}

		telemetry.PendingJobAttemptsTotal.WithLabelValues(job.JobType.String(), "success").Inc()
		if err := r.queue.Complete(ctx, job); err != nil {
			return processed, err
		}
		processed++
	}
}
