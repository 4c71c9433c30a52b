package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/cache"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/config"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// Service is the entry point for bulk pricing operations. Jobs are created
// synchronously (including snapshot capture) and executed in the background;
// callers poll GetJobStatus for progress.
//
// While a job owns an item, its result is authoritative over any optimistic
// client-side write: the UI may paint a price early, but it must reconcile
// from the job record once it is terminal.
type Service struct {
	store      store.Store
	cache      cache.Cache
	runner     *Runner
	undoWindow time.Duration
	statusTTL  time.Duration

	// Sink receives progress for every job this service launches. Optional.
	Sink ProgressFunc
}

// NewService creates a Service.
func NewService(st store.Store, ca cache.Cache, runner *Runner, cfg config.JobsConfig) *Service {
	return &Service{
		store:      st,
		cache:      ca,
		runner:     runner,
		undoWindow: cfg.UndoWindow,
		statusTTL:  cfg.StatusTTL,
	}
}

// CreateJob snapshots the target items, creates an apply_pricing job, and
// launches it. An empty itemIDs selection means every item in the
// organization. Returns store.ErrActiveJobExists when a pending or
// processing job already exists for the organization.
//
// The snapshot is captured before any mutation: it is both the ordered work
// list and the undo payload. Prices are computed from the mode at execution
// time, so a resumed job repeats the same math; items deleted after this
// point surface as item_not_found, not as silent skips.
func (s *Service) CreateJob(ctx context.Context, orgID uuid.UUID, modeID uuid.UUID, itemIDs []uuid.UUID) (*models.PricingJob, error) {
	mode, err := s.store.GetPricingMode(ctx, modeID, orgID)
	if err != nil {
		return nil, fmt.Errorf("get pricing mode: %w", err)
	}

	items, err := s.store.ListLineItems(ctx, orgID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	targets := make([]uuid.UUID, len(items))
	snapshot := make([]models.SnapshotEntry, len(items))
	for i, item := range items {
		targets[i] = item.ID
		snapshot[i] = models.SnapshotEntry{ItemID: item.ID, PreviousPrice: item.Price}
	}

	now := time.Now().UTC()
	job := &models.PricingJob{
		ID:             uuid.New(),
		OrganizationID: orgID,
		OperationType:  models.OperationApplyPricing,
		Status:         models.JobStatusPending,
		ModeID:         &mode.ID,
		ModeName:       mode.Name,
		TargetItemIDs:  targets,
		Snapshot:       snapshot,
		TotalCount:     len(snapshot),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, s.statusTTL)

	s.runner.Launch(job.ID, orgID, s.Sink)
	return job, nil
}

// CreateUndoJob creates and launches an undo_pricing job that restores the
// source job's snapshot prices. The countdown clients display is advisory;
// the checks here are authoritative: the source must be the organization's
// most recent job (a newer job's snapshot supersedes the old one), it must
// be a completed forward job, and its undo window must still be open.
func (s *Service) CreateUndoJob(ctx context.Context, orgID uuid.UUID, sourceJobID uuid.UUID) (*models.PricingJob, error) {
	source, err := s.store.GetJob(ctx, sourceJobID, orgID)
	if err != nil {
		return nil, fmt.Errorf("get source job: %w", err)
	}
	if source.OperationType != models.OperationApplyPricing || source.Status != models.JobStatusCompleted {
		return nil, ErrNotUndoable
	}
	if len(source.Snapshot) == 0 {
		return nil, ErrNotUndoable
	}

	latest, err := s.store.GetLatestJob(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get latest job: %w", err)
	}
	if latest.ID != source.ID {
		return nil, ErrUndoSuperseded
	}

	if source.CompletedAt == nil || time.Since(*source.CompletedAt) > s.undoWindow {
		return nil, ErrUndoExpired
	}

	now := time.Now().UTC()
	job := &models.PricingJob{
		ID:             uuid.New(),
		OrganizationID: orgID,
		OperationType:  models.OperationUndoPricing,
		Status:         models.JobStatusPending,
		ModeName:       source.ModeName,
		TargetItemIDs:  source.TargetItemIDs,
		Snapshot:       source.Snapshot,
		TotalCount:     len(source.Snapshot),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, s.statusTTL)

	s.runner.Launch(job.ID, orgID, s.Sink)
	return job, nil
}

// GetJobStatus returns the durable job record, the authoritative source for
// pollers. Returns store.ErrNotFound when no such job exists.
func (s *Service) GetJobStatus(ctx context.Context, orgID uuid.UUID, jobID uuid.UUID) (*models.PricingJob, error) {
	return s.store.GetJob(ctx, jobID, orgID)
}

// GetActiveJobs returns the organization's pending and processing jobs,
// most recent first.
func (s *Service) GetActiveJobs(ctx context.Context, orgID uuid.UUID) ([]*models.PricingJob, error) {
	return s.store.ListActiveJobs(ctx, orgID)
}

// UndoDeadline reports when the undo window closes for a job, and whether a
// window is open at all. Handlers surface it so clients can render the
// countdown without re-deriving the cutoff.
func (s *Service) UndoDeadline(job *models.PricingJob) (time.Time, bool) {
	if job.OperationType != models.OperationApplyPricing ||
		job.Status != models.JobStatusCompleted || job.CompletedAt == nil {
		return time.Time{}, false
	}
	deadline := job.CompletedAt.Add(s.undoWindow)
	if time.Now().After(deadline) {
		return time.Time{}, false
	}
	return deadline, true
}
