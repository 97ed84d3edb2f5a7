package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleGetById handles GET requests to retrieve a specific document by ID
func (h *Handler) HandleGetById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	docId := vars["id"]

	log.Printf("INFO: handleGetById called for store '%s', document '%s'", storeName, docId)

	doc, err := h.service.Get(r.Context(), storeName, docId)
	if err != nil {
		writeServiceError(w, "Get document '"+docId+"'", err)
		return
	}

	log.Printf("INFO: Retrieved document '%s' from store '%s'", docId, storeName)
	writeJSON(w, http.StatusOK, doc)
}
