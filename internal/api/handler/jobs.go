package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/middleware"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/response"
)

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
// Pollers read the durable record; it is authoritative over any optimistic
// client-side price display.
func NewGetJobHandler(svc PricingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		job, err := svc.GetJobStatus(r.Context(), orgID, jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}

		response.JSON(w, toJobResponse(svc, job))
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs, listing the
// organization's active jobs most recent first. A client reattaching after a
// reload uses this to find the job it should resume polling.
func NewListJobsHandler(svc PricingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		jobs, err := svc.GetActiveJobs(r.Context(), orgID)
		if err != nil {
			writeJobError(w, err)
			return
		}

		out := make([]jobResponse, 0, len(jobs))
		for _, job := range jobs {
			out = append(out, toJobResponse(svc, job))
		}
		response.Collection(w, out, len(out))
	}
}
