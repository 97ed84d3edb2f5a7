package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/adfharrison1/go-indexdb/pkg/documents"
)

// Handler provides HTTP handlers for the document API
type Handler struct {
	service  *documents.Service
	validate *validator.Validate
}

// NewHandler creates a new API handler over the document service
func NewHandler(service *documents.Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}
