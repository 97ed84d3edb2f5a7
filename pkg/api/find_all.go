package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// parsePagination builds pagination options from limit, offset and after
// query parameters
func parsePagination(r *http.Request) (*domain.PaginationOptions, error) {
	opts := domain.DefaultPaginationOptions()
	query := r.URL.Query()

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, domain.ErrInvalidPagination
		}
		opts.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return nil, domain.ErrInvalidPagination
		}
		opts.Offset = offset
	}
	opts.After = query.Get("after")
	return opts, nil
}

// HandleFindAll handles GET requests returning one page of a store's
// documents in id order
func (h *Handler) HandleFindAll(w http.ResponseWriter, r *http.Request) {
	storeName := mux.Vars(r)["store"]

	log.Printf("INFO: handleFindAll called for store '%s'", storeName)

	opts, err := parsePagination(r)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "limit and offset must be integers")
		return
	}

	page, err := h.service.List(r.Context(), storeName, opts)
	if err != nil {
		writeServiceError(w, "List '"+storeName+"'", err)
		return
	}

	log.Printf("INFO: Found %d documents in store '%s' (has_next=%t)", len(page.Documents), storeName, page.HasNext)
	writeJSON(w, http.StatusOK, page)
}
