package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleDeleteById handles DELETE requests to remove a document by ID
func (h *Handler) HandleDeleteById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	docId := vars["id"]

	log.Printf("INFO: handleDeleteById called for store '%s', document '%s'", storeName, docId)

	if err := h.service.Delete(r.Context(), storeName, docId); err != nil {
		writeServiceError(w, "Delete document '"+docId+"'", err)
		return
	}

	log.Printf("INFO: Deleted document '%s' from store '%s'", docId, storeName)
	w.WriteHeader(http.StatusNoContent)
}
