package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/middleware"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/response"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/jobs"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// PricingService defines the job-engine interface the pricing handlers
// depend on.
type PricingService interface {
	CreateJob(ctx context.Context, orgID uuid.UUID, modeID uuid.UUID, itemIDs []uuid.UUID) (*models.PricingJob, error)
	CreateUndoJob(ctx context.Context, orgID uuid.UUID, sourceJobID uuid.UUID) (*models.PricingJob, error)
	GetJobStatus(ctx context.Context, orgID uuid.UUID, jobID uuid.UUID) (*models.PricingJob, error)
	GetActiveJobs(ctx context.Context, orgID uuid.UUID) ([]*models.PricingJob, error)
	UndoDeadline(job *models.PricingJob) (time.Time, bool)
}

// jobResponse is the wire shape for a job record, with the undo deadline
// attached while the window is open.
type jobResponse struct {
	*models.PricingJob
	UndoExpiresAt *time.Time `json:"undo_expires_at,omitempty"`
}

func toJobResponse(svc PricingService, job *models.PricingJob) jobResponse {
	resp := jobResponse{PricingJob: job}
	if deadline, open := svc.UndoDeadline(job); open {
		resp.UndoExpiresAt = &deadline
	}
	return resp
}

// NewApplyPricingHandler returns the handler for POST /api/v1/pricing/apply.
// An empty or absent item_ids selection means every item in the organization.
func NewApplyPricingHandler(svc PricingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		var req struct {
			ModeID  string   `json:"mode_id"`
			ItemIDs []string `json:"item_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.ModeID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "mode_id is required", nil)
			return
		}
		modeID, err := uuid.Parse(req.ModeID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "mode_id must be a valid UUID", nil)
			return
		}

		itemIDs := make([]uuid.UUID, 0, len(req.ItemIDs))
		for _, raw := range req.ItemIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "item_ids must be valid UUIDs", nil)
				return
			}
			itemIDs = append(itemIDs, id)
		}

		job, err := svc.CreateJob(r.Context(), orgID, modeID, itemIDs)
		if err != nil {
			writeJobError(w, err)
			return
		}

		response.Accepted(w, toJobResponse(svc, job))
	}
}

// NewUndoPricingHandler returns the handler for POST /api/v1/pricing/undo.
func NewUndoPricingHandler(svc PricingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		var req struct {
			JobID string `json:"job_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a valid UUID", nil)
			return
		}

		job, err := svc.CreateUndoJob(r.Context(), orgID, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}

		response.Accepted(w, toJobResponse(svc, job))
	}
}

// writeJobError maps job-engine errors onto HTTP statuses.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrActiveJobExists):
		response.Error(w, http.StatusConflict, "JOB_CONFLICT",
			"An active pricing job already exists for this organization", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, jobs.ErrNoItems):
		response.Error(w, http.StatusBadRequest, "NO_ITEMS", "No line items to reprice", nil)
	case errors.Is(err, jobs.ErrUndoExpired):
		response.Error(w, http.StatusGone, "UNDO_EXPIRED", "The undo window has expired", nil)
	case errors.Is(err, jobs.ErrUndoSuperseded):
		response.Error(w, http.StatusConflict, "UNDO_SUPERSEDED",
			"A newer job supersedes this job's snapshot", nil)
	case errors.Is(err, jobs.ErrNotUndoable):
		response.Error(w, http.StatusConflict, "NOT_UNDOABLE", "This job cannot be undone", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Operation failed", nil)
	}
}
