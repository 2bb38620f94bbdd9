package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/demograb/demograb/internal/logctx"
	"github.com/demograb/demograb/internal/storage"
)

// Job is one queued acquisition.
type Job struct {
	ID  string
	URL string
}

// Runner executes queued acquisitions with bounded parallelism and records
// their lifecycle in the acquisition repository.
type Runner struct {
	acquirer *Acquirer
	repo     storage.AcquisitionRepository
	jobs     chan Job

	OnAcquisitionFinished chan *Outcome
	OnAcquisitionFailed   chan Job
}

// NewRunner builds a runner with a queue of queueSize pending jobs.
func NewRunner(acquirer *Acquirer, repo storage.AcquisitionRepository, queueSize int) *Runner {
	return &Runner{
		acquirer: acquirer,
		repo:     repo,
		jobs:     make(chan Job, queueSize),

		OnAcquisitionFinished: make(chan *Outcome),
		OnAcquisitionFailed:   make(chan Job),
	}
}

// Submit queues a URL for acquisition and returns the job id.
func (r *Runner) Submit(url string) (string, error) {
	job := Job{ID: uuid.New().String(), URL: url}

	if err := r.repo.TrackAcquisition(storage.AcquisitionRecord{
		ID:        job.ID,
		URL:       job.URL,
		Status:    storage.StatusPending,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("failed to track acquisition: %w", err)
	}

	select {
	case r.jobs <- job:
		return job.ID, nil
	default:
		// No worker will ever pick this job up; the record must not sit
		// in the registry as pending.
		if err := r.repo.UpdateAcquisition(job.ID, storage.StatusFailed, "", 0, "acquisition queue is full"); err != nil {
			return "", fmt.Errorf("acquisition queue is full (and failed to record it: %w)", err)
		}

		return "", fmt.Errorf("acquisition queue is full")
	}
}

// Start launches maxParallel workers consuming the job queue. Workers stop
// when ctx is cancelled.
func (r *Runner) Start(ctx context.Context, maxParallel int) {
	if maxParallel < 1 {
		maxParallel = 1
	}

	for i := 0; i < maxParallel; i++ {
		go r.work(ctx)
	}
}

func (r *Runner) work(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down acquisition worker")

			return
		case job := <-r.jobs:
			r.run(ctx, job)
		}
	}
}

func (r *Runner) run(ctx context.Context, job Job) {
	logger := logctx.LoggerFromContext(ctx).With("job_id", job.ID, "url", job.URL)

	if err := r.repo.UpdateAcquisition(job.ID, storage.StatusRunning, "", 0, ""); err != nil {
		logger.Error("failed to mark acquisition running", "err", err)
	}

	outcome, err := r.acquirer.Acquire(ctx, job.URL)
	if err != nil {
		logger.Error("acquisition failed", "err", err)

		if updateErr := r.repo.UpdateAcquisition(job.ID, storage.StatusFailed, "", 0, err.Error()); updateErr != nil {
			logger.Error("failed to record acquisition failure", "err", updateErr)
		}

		select {
		case r.OnAcquisitionFailed <- job:
		case <-ctx.Done():
		}

		return
	}

	if err := r.repo.UpdateAcquisition(job.ID, storage.StatusCompleted, outcome.FilePath, outcome.Size, ""); err != nil {
		logger.Error("failed to record acquisition outcome", "err", err)
	}

	select {
	case r.OnAcquisitionFinished <- outcome:
	case <-ctx.Done():
	}
}
