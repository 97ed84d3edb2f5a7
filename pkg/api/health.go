package api

import (
	"net/http"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandleHealth handles GET requests to the health check endpoint. It fails
// when the state store cannot be read.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.StateManager().EnumerateCollections(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unhealthy",
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "go-indexdb is running",
	})
}
