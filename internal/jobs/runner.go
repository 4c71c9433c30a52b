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
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/pricing"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// ProgressFunc is invoked after each batch with the running counters. Panics
// in the sink are swallowed; a broken display callback must never fail a job.
type ProgressFunc func(processed, total int)

// Runner executes pricing jobs batch by batch. Items are processed in
// snapshot order, sequentially within a job; there is no fan-out across
// items, so the only shared mutable state is each item's price row.
type Runner struct {
	store     store.Store
	cache     cache.Cache
	batchSize int
	statusTTL time.Duration

	// running tracks jobs currently executing in this process, so the
	// supervisor's sweep does not re-attach a job that is merely slow.
	running sync.Map
}

// NewRunner creates a Runner with the configured batch size.
func NewRunner(st store.Store, ca cache.Cache, cfg config.JobsConfig) *Runner {
	return &Runner{
		store:     st,
		cache:     ca,
		batchSize: cfg.BatchSize,
		statusTTL: cfg.StatusTTL,
	}
}

// Launch runs the job in a background goroutine. It recovers from panics and
// always drives the job record to a terminal status.
func (r *Runner) Launch(jobID uuid.UUID, orgID uuid.UUID, sink ProgressFunc) {
	if _, loaded := r.running.LoadOrStore(jobID, struct{}{}); loaded {
		return
	}
	go func() {
		ctx := context.Background()
		defer r.running.Delete(jobID)

		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in job runner", "error", rec, "job_id", jobID)
				_ = r.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed,
					store.WithErrorMessage(fmt.Sprintf("panic: %v", rec)))
				_ = r.cache.SetJobStatus(ctx, jobID, models.JobStatusFailed, r.statusTTL)
			}
		}()

		if err := r.Run(ctx, jobID, orgID, sink); err != nil {
			slog.Error("job run failed", "error", err, "job_id", jobID)
		}
	}()
}

// IsRunning reports whether this process is currently executing the job.
func (r *Runner) IsRunning(jobID uuid.UUID) bool {
	_, ok := r.running.Load(jobID)
	return ok
}

// Run executes the job identified by jobID until it reaches a terminal
// status. A pending job is started from the beginning; a processing job is
// re-attached from its processed count, which makes execution
// idempotent-resumable: re-applying an already-applied target price is a
// no-op in effect.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, orgID uuid.UUID, sink ProgressFunc) error {
	job, err := r.store.GetJob(ctx, jobID, orgID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Terminal() {
		return nil
	}

	if job.Status == models.JobStatusPending {
		if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing); err != nil {
			return fmt.Errorf("start job: %w", err)
		}
	}
	_ = r.cache.SetJobStatus(ctx, jobID, models.JobStatusProcessing, r.statusTTL)
	jobsStarted.WithLabelValues(job.OperationType).Inc()

	slog.Info("job started",
		"job_id", jobID,
		"organization_id", orgID,
		"operation", job.OperationType,
		"offset", job.ProcessedCount,
		"total", job.TotalCount)

	// Forward jobs recompute target prices through the mode; undo jobs
	// restore the literal snapshot prices and need neither mode nor items.
	var (
		mode    *models.PricingMode
		itemsBy map[uuid.UUID]*models.LineItem
	)
	if job.OperationType == models.OperationApplyPricing {
		mode, itemsBy, err = r.loadForwardInputs(ctx, job)
		if err != nil {
			return r.failJob(ctx, job, err.Error())
		}
	}

	total := len(job.Snapshot)
	processed := job.ProcessedCount
	var failures []models.ItemFailure

	for processed < total {
		batchStart := time.Now()
		end := processed + r.batchSize
		if end > total {
			end = total
		}

		for _, entry := range job.Snapshot[processed:end] {
			if reason := r.processItem(ctx, job, mode, itemsBy, entry); reason != "" {
				failures = append(failures, models.ItemFailure{ItemID: entry.ItemID, Reason: reason})
				itemsProcessed.WithLabelValues(reason).Inc()
			} else {
				itemsProcessed.WithLabelValues("success").Inc()
			}
		}
		processed = end

		if err := r.store.UpdateJobProgress(ctx, jobID, processed, total); err != nil {
			slog.Warn("progress update failed", "error", err, "job_id", jobID)
		}
		_ = r.cache.SetJobProgress(ctx, jobID, processed, total, r.statusTTL)
		notify(sink, processed, total)
		batchDuration.WithLabelValues(job.OperationType).Observe(time.Since(batchStart).Seconds())
	}

	return r.finishJob(ctx, job, total, failures)
}

// loadForwardInputs resolves the mode and preloads the target items for an
// apply job. A missing mode is a job-level failure: no batch can run.
func (r *Runner) loadForwardInputs(ctx context.Context, job *models.PricingJob) (*models.PricingMode, map[uuid.UUID]*models.LineItem, error) {
	if job.ModeID == nil {
		return nil, nil, errors.New("job has no pricing mode")
	}
	mode, err := r.store.GetPricingMode(ctx, *job.ModeID, job.OrganizationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("pricing mode %s no longer exists", *job.ModeID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load pricing mode: %w", err)
	}

	ids := make([]uuid.UUID, len(job.Snapshot))
	for i, entry := range job.Snapshot {
		ids[i] = entry.ItemID
	}
	items, err := r.store.ListLineItems(ctx, job.OrganizationID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load line items: %w", err)
	}
	byID := make(map[uuid.UUID]*models.LineItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return mode, byID, nil
}

// processItem attempts one item and returns a failure reason, or "" on
// success. Per-item errors never escape the batch loop.
func (r *Runner) processItem(ctx context.Context, job *models.PricingJob, mode *models.PricingMode, itemsBy map[uuid.UUID]*models.LineItem, entry models.SnapshotEntry) string {
	var (
		target        float64
		appliedModeID *uuid.UUID
	)
	if job.OperationType == models.OperationUndoPricing {
		target = entry.PreviousPrice
	} else {
		item, ok := itemsBy[entry.ItemID]
		if !ok {
			return models.FailureItemNotFound
		}
		price, err := pricing.ApplyMode(mode, item)
		if errors.Is(err, pricing.ErrInvalidBasePrice) {
			return models.FailureInvalidBasePrice
		}
		if err != nil {
			return models.FailureUnknown
		}
		target = price
		appliedModeID = job.ModeID
	}

	err := r.store.SetLineItemPrice(ctx, entry.ItemID, job.OrganizationID, target, appliedModeID)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return models.FailureItemNotFound
	case errors.Is(err, store.ErrWriteConflict):
		return models.FailureWriteConflict
	default:
		slog.Warn("item write failed", "error", err, "job_id", job.ID, "item_id", entry.ItemID)
		return models.FailureUnknown
	}
}

// finishJob writes the terminal status. A job where every item failed is
// failed; a job with some per-item failures is still completed, so callers
// can tell "nothing worked" from "mostly worked".
func (r *Runner) finishJob(ctx context.Context, job *models.PricingJob, total int, failures []models.ItemFailure) error {
	result := &models.JobResult{
		SuccessCount: total - len(failures),
		FailedCount:  len(failures),
		Failures:     failures,
	}

	status := models.JobStatusCompleted
	opts := []store.JobUpdateOption{store.WithResult(result)}
	if total > 0 && len(failures) == total {
		status = models.JobStatusFailed
		opts = append(opts, store.WithErrorMessage(
			fmt.Sprintf("all %d items failed; first: %s", total, failures[0].Reason)))
	}

	if err := r.store.UpdateJobStatus(ctx, job.ID, status, opts...); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	_ = r.cache.SetJobStatus(ctx, job.ID, status, r.statusTTL)
	jobsFinished.WithLabelValues(job.OperationType, status).Inc()

	if job.OperationType == models.OperationApplyPricing && job.ModeID != nil {
		if err := r.store.RecordModeUsage(ctx, *job.ModeID, status == models.JobStatusCompleted); err != nil {
			slog.Warn("record mode usage failed", "error", err, "mode_id", *job.ModeID)
		}
	}

	slog.Info("job finished",
		"job_id", job.ID,
		"status", status,
		"success_count", result.SuccessCount,
		"failed_count", result.FailedCount)
	return nil
}

// failJob marks the job failed before any batch ran.
func (r *Runner) failJob(ctx context.Context, job *models.PricingJob, msg string) error {
	if err := r.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	_ = r.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, r.statusTTL)
	jobsFinished.WithLabelValues(job.OperationType, models.JobStatusFailed).Inc()
	return nil
}

func notify(sink ProgressFunc, processed, total int) {
	if sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("progress sink panicked", "error", rec)
		}
	}()
	sink(processed, total)
}
