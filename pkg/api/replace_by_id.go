package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleReplaceById handles PUT requests storing a complete document under
// an ID. The document is created when absent.
func (h *Handler) HandleReplaceById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	docId := vars["id"]

	log.Printf("INFO: handleReplaceById called for store '%s', document '%s'", storeName, docId)

	doc, err := decodeDocument(r)
	if err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.service.Replace(r.Context(), storeName, docId, doc)
	if err != nil {
		writeServiceError(w, "Replace document '"+docId+"'", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	doc["_id"] = docId
	log.Printf("INFO: Replaced document '%s' in store '%s' (created=%t)", docId, storeName, created)
	writeJSON(w, status, doc)
}
