package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-indexdb/pkg/documents"
	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// BatchUpdateRequest represents the request body for batch update operations
type BatchUpdateRequest struct {
	Operations []documents.Patch `json:"operations" validate:"required,min=1"`
}

// BatchUpdateResponse represents the response for batch update operations
type BatchUpdateResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	UpdatedCount int               `json:"updated_count"`
	Store        string            `json:"store"`
	Documents    []domain.Document `json:"documents"`
}

// HandleBatchUpdate handles PATCH requests updating many documents in one
// transaction. Either every operation applies or none does.
func (h *Handler) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleBatchUpdate called for store '%s'", storeName)

	var req BatchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "No operations provided")
		return
	}

	docs, err := h.service.BatchUpdate(r.Context(), storeName, req.Operations)
	if err != nil {
		writeServiceError(w, "Batch update in '"+storeName+"'", err)
		return
	}

	writeJSON(w, http.StatusOK, BatchUpdateResponse{
		Success:      true,
		Message:      "Batch update completed successfully",
		UpdatedCount: len(docs),
		Store:        storeName,
		Documents:    docs,
	})

	log.Printf("INFO: Batch update successful for store '%s', updated %d documents", storeName, len(docs))
}
