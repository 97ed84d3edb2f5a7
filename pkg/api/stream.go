package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

var errClientGone = errors.New("client went away")

// HandleIndexStream handles GET requests streaming an index range as a JSON
// array, flushing after every document. Errors after the first document
// can no longer change the status, so they end the array early.
func (h *Handler) HandleIndexStream(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	indexName := vars["index"]

	log.Printf("INFO: handleIndexStream called for store '%s', index '%s'", storeName, indexName)

	from, to := rangeBounds(r)
	flusher, _ := w.(http.Flusher)
	started := false
	docCount := 0

	start := func() {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("[\n"))
		started = true
	}

	err := h.service.Range(r.Context(), storeName, indexName, from, to, func(doc domain.Document) error {
		docJSON, err := json.Marshal(doc)
		if err != nil {
			log.Printf("ERROR: Failed to marshal document: %v", err)
			return nil // Skip this document and continue streaming
		}
		if !started {
			start()
		} else if _, err := w.Write([]byte(",\n")); err != nil {
			return errClientGone
		}
		if _, err := w.Write(docJSON); err != nil {
			log.Printf("ERROR: Failed to write to response: %v", err)
			return errClientGone
		}
		if flusher != nil {
			flusher.Flush()
		}
		docCount++
		return nil
	})

	switch {
	case err != nil && !started:
		writeServiceError(w, "Stream '"+storeName+"/"+indexName+"'", err)
		return
	case errors.Is(err, errClientGone):
		return
	case err != nil:
		log.Printf("ERROR: Stream of '%s/%s' interrupted after %d documents: %v", storeName, indexName, docCount, err)
	}
	if !started {
		start()
	}
	w.Write([]byte("\n]"))

	log.Printf("INFO: Streamed %d documents from store '%s', index '%s'", docCount, storeName, indexName)
}
