package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-indexdb/pkg/documents"
	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// BatchInsertRequest represents the request body for batch insert operations
type BatchInsertRequest struct {
	Documents []domain.Document `json:"documents" validate:"required,min=1"`
}

// BatchInsertResponse represents the response for batch insert operations
type BatchInsertResponse struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	InsertedCount int      `json:"inserted_count"`
	Store         string   `json:"store"`
	IDs           []string `json:"ids"`
}

// HandleBatchInsert handles POST requests inserting many documents in one
// transaction
func (h *Handler) HandleBatchInsert(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleBatchInsert called for store '%s'", storeName)

	var req BatchInsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "No documents provided")
		return
	}
	if len(req.Documents) > documents.MaxBatchSize {
		log.Printf("ERROR: Too many documents for batch insert: %d", len(req.Documents))
		WriteJSONError(w, http.StatusBadRequest, "Maximum 1000 documents allowed per batch")
		return
	}

	ids, err := h.service.BatchInsert(r.Context(), storeName, req.Documents)
	if err != nil {
		writeServiceError(w, "Batch insert into '"+storeName+"'", err)
		return
	}

	writeJSON(w, http.StatusCreated, BatchInsertResponse{
		Success:       true,
		Message:       "Batch insert completed successfully",
		InsertedCount: len(ids),
		Store:         storeName,
		IDs:           ids,
	})

	log.Printf("INFO: Batch insert successful for store '%s', inserted %d documents", storeName, len(ids))
}
