// Package transport defines the HTTP DTOs for the quotes module.
package transport

import (
	"encoding/json"
	"time"

	"procurement_backend/internal/quotes/repository"

	"github.com/google/uuid"
)

// SubmitQuoteRequest is a supplier's submission for one line item.
type SubmitQuoteRequest struct {
	SupplierID   uuid.UUID       `json:"supplierId" validate:"required"`
	RFQID        uuid.UUID       `json:"rfqId" validate:"required"`
	LineItemID   uuid.UUID       `json:"lineItemId" validate:"required"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
	PaymentTerms string          `json:"paymentTerms"`
}

// QuoteResponse is the API representation of a quote.
type QuoteResponse struct {
	ID           uuid.UUID       `json:"id"`
	RFQID        uuid.UUID       `json:"rfqId"`
	SupplierID   uuid.UUID       `json:"supplierId"`
	LineItemID   uuid.UUID       `json:"lineItemId"`
	Status       string          `json:"status"`
	Payload      json.RawMessage `json:"payload"`
	PaymentTerms string          `json:"paymentTerms"`
	SubmittedAt  *time.Time      `json:"submittedAt,omitempty"`
	DecidedAt    *time.Time      `json:"decidedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// FromQuote maps a repository quote to its API shape.
func FromQuote(q *repository.Quote) QuoteResponse {
	return QuoteResponse{
		ID:           q.ID,
		RFQID:        q.RFQID,
		SupplierID:   q.SupplierID,
		LineItemID:   q.LineItemID,
		Status:       q.Status,
		Payload:      q.Payload,
		PaymentTerms: q.PaymentTerms,
		SubmittedAt:  q.SubmittedAt,
		DecidedAt:    q.DecidedAt,
		CreatedAt:    q.CreatedAt,
	}
}
