package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API routes with the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// Store declarations
	router.HandleFunc("/stores", h.HandleListStores).Methods("GET")
	router.HandleFunc("/stores/{store}", h.HandleDeclareStore).Methods("PUT")
	router.HandleFunc("/stores/{store}", h.HandleGetStore).Methods("GET")
	router.HandleFunc("/stores/{store}", h.HandleDropStore).Methods("DELETE")
	router.HandleFunc("/stores/{store}/collections", h.HandleStoreCollections).Methods("GET")
	router.HandleFunc("/collections", h.HandleListCollections).Methods("GET")

	// Documents
	router.HandleFunc("/stores/{store}/documents", h.HandleInsert).Methods("POST")
	router.HandleFunc("/stores/{store}/documents", h.HandleFindAll).Methods("GET")
	router.HandleFunc("/stores/{store}/documents", h.HandleClear).Methods("DELETE")
	router.HandleFunc("/stores/{store}/documents/{id}", h.HandleGetById).Methods("GET")
	router.HandleFunc("/stores/{store}/documents/{id}", h.HandleReplaceById).Methods("PUT")  // Complete replacement
	router.HandleFunc("/stores/{store}/documents/{id}", h.HandleUpdateById).Methods("PATCH") // Partial update
	router.HandleFunc("/stores/{store}/documents/{id}", h.HandleDeleteById).Methods("DELETE")

	// Batch operations
	router.HandleFunc("/stores/{store}/batch", h.HandleBatchInsert).Methods("POST")
	router.HandleFunc("/stores/{store}/batch", h.HandleBatchUpdate).Methods("PATCH")

	// Index queries
	router.HandleFunc("/stores/{store}/indexes", h.HandleGetIndexes).Methods("GET")
	router.HandleFunc("/stores/{store}/indexes/{index}", h.HandleIndexLookup).Methods("GET")
	router.HandleFunc("/stores/{store}/indexes/{index}/range", h.HandleIndexRange).Methods("GET")
	router.HandleFunc("/stores/{store}/indexes/{index}/stream", h.HandleIndexStream).Methods("GET")
}
