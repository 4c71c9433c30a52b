package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/cache"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/config"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// Supervisor re-attaches or cleans up jobs left non-terminal by a crash or
// restart. It is an explicit instance whose lifecycle the caller owns: create
// it, call ResumeAll once at startup, optionally Start a background sweep,
// and Stop it on shutdown.
//
// A job is considered stuck when no progress write has landed within the
// configured window. UpdatedAt is bumped by creation, the start transition,
// and every batch's progress upsert, so it is a direct last-progress
// timestamp. Marking a job stuck only changes the record; an execution that
// is merely slow may still persist batches afterwards, which the store's
// terminal-guarded progress writes absorb.
type Supervisor struct {
	store      store.Store
	cache      cache.Cache
	runner     *Runner
	stuckAfter time.Duration
	statusTTL  time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewSupervisor creates a Supervisor over the given store and runner.
func NewSupervisor(st store.Store, ca cache.Cache, runner *Runner, cfg config.JobsConfig) *Supervisor {
	return &Supervisor{
		store:      st,
		cache:      ca,
		runner:     runner,
		stuckAfter: cfg.StuckAfter,
		statusTTL:  cfg.StatusTTL,
	}
}

// Resume inspects the organization's most recent non-terminal job and either
// marks it stuck or re-attaches the runner from its processed count. It
// returns the job it acted on, or nil when there was nothing to do.
func (s *Supervisor) Resume(ctx context.Context, orgID uuid.UUID) (*models.PricingJob, error) {
	active, err := s.store.ListActiveJobs(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}

	job := active[0]
	if err := s.superviseJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ResumeAll sweeps every organization's unfinished jobs. Called once at
// process startup and by the periodic sweep.
func (s *Supervisor) ResumeAll(ctx context.Context) error {
	jobs, err := s.store.ListUnfinishedJobs(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished jobs: %w", err)
	}
	for _, job := range jobs {
		if err := s.superviseJob(ctx, job); err != nil {
			slog.Error("supervise job failed", "error", err, "job_id", job.ID)
		}
	}
	return nil
}

func (s *Supervisor) superviseJob(ctx context.Context, job *models.PricingJob) error {
	// A job this process is executing is neither stuck nor orphaned.
	if s.runner.IsRunning(job.ID) {
		return nil
	}

	idle := time.Since(job.UpdatedAt)
	if idle > s.stuckAfter {
		slog.Warn("marking job stuck",
			"job_id", job.ID,
			"organization_id", job.OrganizationID,
			"idle", idle,
			"processed", job.ProcessedCount,
			"total", job.TotalCount)
		err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage("stuck"))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("mark job stuck: %w", err)
		}
		_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, s.statusTTL)
		jobsMarkedStuck.Inc()
		return nil
	}

	slog.Info("re-attaching job",
		"job_id", job.ID,
		"organization_id", job.OrganizationID,
		"offset", job.ProcessedCount,
		"total", job.TotalCount)
	s.runner.Launch(job.ID, job.OrganizationID, nil)
	return nil
}

// Start begins a periodic background sweep. Safe to call once; use Stop to
// shut it down.
func (s *Supervisor) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.ResumeAll(context.Background()); err != nil {
					slog.Error("supervisor sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the background sweep and waits for it to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.stopped
	s.stop = nil
	s.stopped = nil
}
