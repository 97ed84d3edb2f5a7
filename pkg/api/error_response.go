package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/adfharrison1/go-indexdb/pkg/documents"
	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
)

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WriteJSONError writes a JSON error response with the given status code and message
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	json.NewEncoder(w).Encode(response)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, documents.ErrStoreNotFound),
		errors.Is(err, documents.ErrDocumentNotFound),
		errors.Is(err, indexing.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, documents.ErrStoreExists),
		errors.Is(err, documents.ErrDocumentExists),
		errors.Is(err, domain.ErrTransactionConflict):
		return http.StatusConflict
	case errors.Is(err, documents.ErrInvalidSpec),
		errors.Is(err, documents.ErrInvalidDocument),
		errors.Is(err, domain.ErrInvalidPagination),
		errors.Is(err, indexing.ErrUnorderedIndex):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError logs err and writes it with its mapped status
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s failed: %v", op, err)
	} else {
		log.Printf("WARN: %s rejected: %v", op, err)
	}
	WriteJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}
