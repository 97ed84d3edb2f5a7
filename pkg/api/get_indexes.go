package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// GetIndexesResponse represents the response for listing a store's indexes
type GetIndexesResponse struct {
	Success bool               `json:"success"`
	Store   string             `json:"store"`
	Indexes []domain.IndexSpec `json:"indexes"`
	Count   int                `json:"count"`
}

// IndexQueryResponse carries the documents an index query matched
type IndexQueryResponse struct {
	Store     string            `json:"store"`
	Index     string            `json:"index"`
	Documents []domain.Document `json:"documents"`
	Count     int               `json:"count"`
}

// HandleGetIndexes handles GET requests listing the indexes of a store
func (h *Handler) HandleGetIndexes(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleGetIndexes called for store '%s'", storeName)

	spec, err := h.service.Store(r.Context(), storeName)
	if err != nil {
		writeServiceError(w, "Get indexes of '"+storeName+"'", err)
		return
	}
	indexes := spec.Indexes
	if indexes == nil {
		indexes = []domain.IndexSpec{}
	}

	writeJSON(w, http.StatusOK, GetIndexesResponse{
		Success: true,
		Store:   storeName,
		Indexes: indexes,
		Count:   len(indexes),
	})
}

// HandleIndexLookup handles GET requests returning the documents whose
// indexed field equals the value query parameter
func (h *Handler) HandleIndexLookup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	indexName := vars["index"]

	if !r.URL.Query().Has("value") {
		WriteJSONError(w, http.StatusBadRequest, "value query parameter is required")
		return
	}
	value := r.URL.Query().Get("value")

	log.Printf("INFO: handleIndexLookup called for store '%s', index '%s', value '%s'", storeName, indexName, value)

	docs, err := h.service.Lookup(r.Context(), storeName, indexName, value)
	if err != nil {
		writeServiceError(w, "Lookup on '"+storeName+"/"+indexName+"'", err)
		return
	}

	writeJSON(w, http.StatusOK, IndexQueryResponse{
		Store:     storeName,
		Index:     indexName,
		Documents: docs,
		Count:     len(docs),
	})
}

// rangeBounds reads the optional from and to query parameters. An absent
// parameter is an open bound.
func rangeBounds(r *http.Request) (from, to *string) {
	query := r.URL.Query()
	if query.Has("from") {
		v := query.Get("from")
		from = &v
	}
	if query.Has("to") {
		v := query.Get("to")
		to = &v
	}
	return from, to
}

// HandleIndexRange handles GET requests returning the documents whose
// indexed field lies between from and to, in index order
func (h *Handler) HandleIndexRange(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	indexName := vars["index"]

	log.Printf("INFO: handleIndexRange called for store '%s', index '%s'", storeName, indexName)

	from, to := rangeBounds(r)
	docs := []domain.Document{}
	err := h.service.Range(r.Context(), storeName, indexName, from, to, func(doc domain.Document) error {
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		writeServiceError(w, "Range on '"+storeName+"/"+indexName+"'", err)
		return
	}

	writeJSON(w, http.StatusOK, IndexQueryResponse{
		Store:     storeName,
		Index:     indexName,
		Documents: docs,
		Count:     len(docs),
	})
}
