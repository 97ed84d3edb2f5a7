package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// DeclareStoreRequest is the body of a store declaration. The store name
// comes from the path.
type DeclareStoreRequest struct {
	Indexes []domain.IndexSpec `json:"indexes" validate:"dive"`
}

// DeclareStoreResponse reports the declared store and whether it is new
type DeclareStoreResponse struct {
	Store       domain.StoreSpec `json:"store"`
	Created     bool             `json:"created"`
	Collections []string         `json:"collections"`
}

// HandleDeclareStore handles PUT requests declaring a store and its indexes
func (h *Handler) HandleDeclareStore(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleDeclareStore called for store '%s'", storeName)

	var req DeclareStoreRequest
	// an empty body declares a store without indexes
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	spec := domain.StoreSpec{Name: storeName, Indexes: req.Indexes}
	created, err := h.service.DeclareStore(r.Context(), spec)
	if err != nil {
		writeServiceError(w, "Declare store '"+storeName+"'", err)
		return
	}
	collections, err := h.service.StoreCollections(r.Context(), storeName)
	if err != nil {
		writeServiceError(w, "List collections of '"+storeName+"'", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	log.Printf("INFO: Store '%s' declared (created=%t)", storeName, created)
	writeJSON(w, status, DeclareStoreResponse{Store: spec, Created: created, Collections: collections})
}

// HandleListStores handles GET requests listing every declared store
func (h *Handler) HandleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.service.Stores(r.Context())
	if err != nil {
		writeServiceError(w, "List stores", err)
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

// HandleGetStore handles GET requests for one store declaration
func (h *Handler) HandleGetStore(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	spec, err := h.service.Store(r.Context(), storeName)
	if err != nil {
		writeServiceError(w, "Get store '"+storeName+"'", err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

// HandleDropStore handles DELETE requests removing a store with its
// documents and indexes
func (h *Handler) HandleDropStore(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleDropStore called for store '%s'", storeName)

	if err := h.service.DropStore(r.Context(), storeName); err != nil {
		writeServiceError(w, "Drop store '"+storeName+"'", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStoreCollections handles GET requests listing the physical
// collections backing one store
func (h *Handler) HandleStoreCollections(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	names, err := h.service.StoreCollections(r.Context(), storeName)
	if err != nil {
		writeServiceError(w, "List collections of '"+storeName+"'", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// HandleListCollections handles GET requests listing every physical
// collection of the state store
func (h *Handler) HandleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.service.Collections(r.Context())
	if err != nil {
		writeServiceError(w, "List collections", err)
		return
	}
	writeJSON(w, http.StatusOK, collections)
}
