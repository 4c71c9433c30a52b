package handler

import (
	"net/http"

	mw "github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/middleware"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/response"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
)

// NewListItemsHandler returns the handler for GET /api/v1/items. Clients use
// it to reconcile displayed prices with the applied-mode stamps after a job
// finishes.
func NewListItemsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrganizationID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
			return
		}

		items, err := st.ListLineItems(r.Context(), orgID, nil)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list line items", nil)
			return
		}
		response.Collection(w, items, len(items))
	}
}
