package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrActiveJobExists is returned by CreateJob when a pending or processing
// job already exists for the same organization. Two concurrent jobs could
// both read-then-write the same item prices from stale snapshots, so the
// second creation is rejected rather than queued.
var ErrActiveJobExists = errors.New("an active pricing job already exists for this organization")

// ErrWriteConflict is returned by SetLineItemPrice when the underlying write
// is rejected, e.g. by a concurrent external edit.
var ErrWriteConflict = errors.New("line item write conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetDefaultOrganization(ctx context.Context) (*models.Organization, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error

	CreatePricingMode(ctx context.Context, mode *models.PricingMode) error
	GetPricingMode(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.PricingMode, error)
	ListPricingModes(ctx context.Context, orgID uuid.UUID) ([]*models.PricingMode, error)
	RecordModeUsage(ctx context.Context, id uuid.UUID, success bool) error

	ListLineItems(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*models.LineItem, error)
	GetLineItem(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.LineItem, error)
	SetLineItemPrice(ctx context.Context, id uuid.UUID, orgID uuid.UUID, price float64, appliedModeID *uuid.UUID) error

	CreateJob(ctx context.Context, job *models.PricingJob) error
	GetJob(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.PricingJob, error)
	GetLatestJob(ctx context.Context, orgID uuid.UUID) (*models.PricingJob, error)
	ListActiveJobs(ctx context.Context, orgID uuid.UUID) ([]*models.PricingJob, error)
	ListUnfinishedJobs(ctx context.Context) ([]*models.PricingJob, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, processed, total int) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

type jobUpdateParams struct {
	ErrorMessage *string
	Result       *models.JobResult
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithResult(result *models.JobResult) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = result
	}
}

// validTransitions encodes the monotonic job lifecycle. A pending job may be
// failed directly when the supervisor declares it stuck before it ever ran.
var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusProcessing, models.JobStatusFailed},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed},
}

func transitionAllowed(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}
