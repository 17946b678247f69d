// Package transport defines the HTTP DTOs for the suppliers module.
package transport

import (
	"time"

	"procurement_backend/internal/suppliers/repository"

	"github.com/google/uuid"
)

// CreateSupplierRequest registers a supplier in the directory.
type CreateSupplierRequest struct {
	Name         string   `json:"name" validate:"required"`
	ContactPhone string   `json:"contactPhone" validate:"required"`
	ContactEmail string   `json:"contactEmail" validate:"omitempty,email"`
	Categories   []string `json:"categories" validate:"required,min=1"`
}

// SupplierResponse is the API representation of a supplier.
type SupplierResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ContactPhone string    `json:"contactPhone"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	Categories   []string  `json:"categories"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromSupplier maps a repository supplier to its API shape.
func FromSupplier(s *repository.Supplier) SupplierResponse {
	return SupplierResponse{
		ID:           s.ID,
		Name:         s.Name,
		ContactPhone: s.ContactPhone,
		ContactEmail: s.ContactEmail,
		Categories:   s.Categories,
		Active:       s.Active,
		CreatedAt:    s.CreatedAt,
	}
}
