package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses. Transitions are monotonic:
// pending -> processing -> completed | failed (pending may also go straight
// to failed when the supervisor declares a never-started job stuck).
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job operation types.
const (
	OperationApplyPricing = "apply_pricing"
	OperationUndoPricing  = "undo_pricing"
)

// Per-item failure reasons recorded in a job's result summary.
const (
	FailureInvalidBasePrice = "invalid_base_price"
	FailureItemNotFound     = "item_not_found"
	FailureWriteConflict    = "write_conflict"
	FailureUnknown          = "unknown"
)

// SnapshotEntry records one item's price as it was before the job mutated
// anything. The ordered snapshot is both the job's work order and the undo
// payload.
type SnapshotEntry struct {
	ItemID        uuid.UUID `json:"item_id"`
	PreviousPrice float64   `json:"previous_price"`
}

// ItemFailure records one item the job could not reprice.
type ItemFailure struct {
	ItemID uuid.UUID `json:"item_id"`
	Reason string    `json:"reason"`
}

// JobResult is the terminal summary. A job with some failures is still
// completed; the tally preserves the difference between "nothing worked" and
// "mostly worked".
type JobResult struct {
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	Failures     []ItemFailure `json:"failures,omitempty"`
}

// PricingJob is the durable record of one bulk pricing operation. Clients
// poll it by ID; the supervisor rehydrates from it after a crash or reload.
//
// ModeName is denormalized so the job stays displayable after the mode is
// deleted. For apply jobs, Snapshot holds the pre-change prices of every
// target item. For undo jobs, Snapshot holds the restore targets (the source
// job's snapshot); undo jobs capture no snapshot of their own, so an undo
// cannot itself be undone.
type PricingJob struct {
	ID             uuid.UUID       `db:"id"              json:"id"`
	OrganizationID uuid.UUID       `db:"organization_id" json:"organization_id"`
	OperationType  string          `db:"operation_type"  json:"operation_type"`
	Status         string          `db:"status"          json:"status"`
	ModeID         *uuid.UUID      `db:"mode_id"         json:"mode_id,omitempty"`
	ModeName       string          `db:"mode_name"       json:"mode_name"`
	TargetItemIDs  []uuid.UUID     `db:"target_item_ids" json:"target_item_ids,omitempty"`
	Snapshot       []SnapshotEntry `db:"snapshot"        json:"snapshot,omitempty"`
	ProcessedCount int             `db:"processed_count" json:"processed_count"`
	TotalCount     int             `db:"total_count"     json:"total_count"`
	Result         *JobResult      `db:"result"          json:"result,omitempty"`
	ErrorMessage   *string         `db:"error_message"   json:"error_message,omitempty"`
	StartedAt      *time.Time      `db:"started_at"      json:"started_at,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at"    json:"completed_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"      json:"updated_at"`
}

// Terminal reports whether the job has reached a final status.
func (j *PricingJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
