package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleUpdateById handles PATCH requests merging fields into an existing
// document. Fields set to null are removed.
func (h *Handler) HandleUpdateById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	docId := vars["id"]

	log.Printf("INFO: handleUpdateById called for store '%s', document '%s'", storeName, docId)

	patch, err := decodeDocument(r)
	if err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.service.Update(r.Context(), storeName, docId, patch)
	if err != nil {
		writeServiceError(w, "Update document '"+docId+"'", err)
		return
	}

	log.Printf("INFO: Updated document '%s' in store '%s'", docId, storeName)
	writeJSON(w, http.StatusOK, doc)
}
