package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-indexdb/pkg/documents"
	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// InsertResponse carries the id of an inserted document
type InsertResponse struct {
	ID string `json:"_id"`
}

// HandleInsert handles POST requests to insert a document into a store
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleInsert called for store '%s'", storeName)

	doc, err := decodeDocument(r)
	if err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.service.Insert(r.Context(), storeName, doc)
	if err != nil {
		writeServiceError(w, "Insert into '"+storeName+"'", err)
		return
	}

	log.Printf("INFO: Insert successful for store '%s', document '%s'", storeName, id)
	w.Header().Set("Location", "/stores/"+storeName+"/documents/"+id)
	writeJSON(w, http.StatusCreated, InsertResponse{ID: id})
}

// HandleClear handles DELETE requests removing every document of a store
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleClear called for store '%s'", storeName)

	if err := h.service.Clear(r.Context(), storeName); err != nil {
		writeServiceError(w, "Clear '"+storeName+"'", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeDocument reads a JSON object body, rejecting anything else
func decodeDocument(r *http.Request) (domain.Document, error) {
	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, documents.ErrInvalidDocument
	}
	return doc, nil
}
