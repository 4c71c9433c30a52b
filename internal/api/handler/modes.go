package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/middleware"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/response"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// NewListModesHandler returns the handler for GET /api/v1/modes. Presets are
// visible to every organization alongside its own modes.
func NewListModesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		modes, err := st.ListPricingModes(r.Context(), orgID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list pricing modes", nil)
			return
		}
		response.Collection(w, modes, len(modes))
	}
}

// NewGetModeHandler returns the handler for GET /api/v1/modes/{modeID}.
func NewGetModeHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		modeID, err := uuid.Parse(chi.URLParam(r, "modeID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "modeID must be a valid UUID", nil)
			return
		}

		mode, err := st.GetPricingMode(r.Context(), modeID, orgID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Pricing mode not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get pricing mode", nil)
			return
		}
		response.JSON(w, mode)
	}
}

// NewCreateModeHandler returns the handler for POST /api/v1/modes. Only
// organization-authored modes can be created here; presets are seed data.
func NewCreateModeHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		var req struct {
			Name        string             `json:"name"`
			Adjustments map[string]float64 `json:"adjustments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if len(req.Adjustments) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one adjustment is required", nil)
			return
		}
		for category, factor := range req.Adjustments {
			if !models.ValidCategories[category] {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"unknown category: "+category, nil)
				return
			}
			if factor <= 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"adjustment factors must be positive", nil)
				return
			}
		}

		now := time.Now().UTC()
		mode := &models.PricingMode{
			ID:             uuid.New(),
			OrganizationID: &orgID,
			Name:           req.Name,
			Adjustments:    req.Adjustments,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := st.CreatePricingMode(r.Context(), mode); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create pricing mode", nil)
			return
		}
		response.Created(w, mode)
	}
}
