// Package transport defines the HTTP DTOs for the rfq module.
package transport

import (
	"encoding/json"
	"time"

	"procurement_backend/internal/dispatch"
	"procurement_backend/internal/quotes/repository"
	rfqrepo "procurement_backend/internal/rfq/repository"

	"github.com/google/uuid"
)

// RequisitionItemRequest is one source item on RFQ creation.
type RequisitionItemRequest struct {
	Name          string  `json:"name" validate:"required"`
	Specification string  `json:"specification"`
	Quantity      float64 `json:"quantity" validate:"required,gt=0"`
	Unit          string  `json:"unit" validate:"required"`
}

// CreateRFQRequest opens an RFQ for a requisition.
type CreateRFQRequest struct {
	RequisitionID uuid.UUID                `json:"requisitionId" validate:"required"`
	PaymentTerms  string                   `json:"paymentTerms"`
	Items         []RequisitionItemRequest `json:"items" validate:"required,min=1,dive"`
}

// DispatchResponse reports the fan-out result.
type DispatchResponse struct {
	RFQID        uuid.UUID `json:"rfqId"`
	Status       string    `json:"status"`
	TasksCreated int       `json:"tasksCreated"`
}

// LineItemResponse is the API representation of a line item.
type LineItemResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Specification      string          `json:"specification,omitempty"`
	Quantity           float64         `json:"quantity"`
	Unit               string          `json:"unit"`
	Category           string          `json:"category"`
	ClassifyMethod     string          `json:"classifyMethod"`
	ClassifyConfidence float64         `json:"classifyConfidence"`
	Scores             json.RawMessage `json:"scores,omitempty"`
}

// TaskResponse is the API representation of a notification task.
type TaskResponse struct {
	ID            uuid.UUID  `json:"id"`
	SupplierID    uuid.UUID  `json:"supplierId"`
	Category      string     `json:"category"`
	Status        string     `json:"status"`
	AttemptCount  int        `json:"attemptCount"`
	MaxAttempts   int        `json:"maxAttempts"`
	LastError     *string    `json:"lastError,omitempty"`
	NeedsFollowUp bool       `json:"needsFollowUp"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
}

// QuoteSummary is the quote slice of the operator view.
type QuoteSummary struct {
	ID          uuid.UUID  `json:"id"`
	SupplierID  uuid.UUID  `json:"supplierId"`
	LineItemID  uuid.UUID  `json:"lineItemId"`
	Status      string     `json:"status"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// RFQResponse is the operator view of an RFQ.
type RFQResponse struct {
	ID                   uuid.UUID          `json:"id"`
	RequisitionID        uuid.UUID          `json:"requisitionId"`
	Status               string             `json:"status"`
	ClassificationStatus string             `json:"classificationStatus"`
	PaymentTerms         string             `json:"paymentTerms,omitempty"`
	SentAt               *time.Time         `json:"sentAt,omitempty"`
	ClosedAt             *time.Time         `json:"closedAt,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	LineItems            []LineItemResponse `json:"lineItems"`
	Tasks                []TaskResponse     `json:"tasks,omitempty"`
	Quotes               []QuoteSummary     `json:"quotes,omitempty"`
}

// FromRFQ maps an RFQ with its line items, tasks and quotes to the API shape.
func FromRFQ(rfq *rfqrepo.RFQ, items []rfqrepo.LineItem, tasks []dispatch.Task, quotes []repository.Quote) RFQResponse {
	resp := RFQResponse{
		ID:                   rfq.ID,
		RequisitionID:        rfq.RequisitionID,
		Status:               rfq.Status,
		ClassificationStatus: rfq.ClassificationStatus,
		PaymentTerms:         rfq.PaymentTerms,
		SentAt:               rfq.SentAt,
		ClosedAt:             rfq.ClosedAt,
		CreatedAt:            rfq.CreatedAt,
		LineItems:            make([]LineItemResponse, 0, len(items)),
	}
	for _, it := range items {
		resp.LineItems = append(resp.LineItems, LineItemResponse{
			ID:                 it.ID,
			Name:               it.Name,
			Specification:      it.Specification,
			Quantity:           it.Quantity,
			Unit:               it.Unit,
			Category:           it.Category(),
			ClassifyMethod:     it.ClassifyMethod,
			ClassifyConfidence: it.ClassifyConfidence,
			Scores:             it.ClassificationScores,
		})
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, FromTask(t))
	}
	for _, q := range quotes {
		resp.Quotes = append(resp.Quotes, QuoteSummary{
			ID:          q.ID,
			SupplierID:  q.SupplierID,
			LineItemID:  q.LineItemID,
			Status:      q.Status,
			SubmittedAt: q.SubmittedAt,
		})
	}
	return resp
}

// FromTask maps a notification task to its API shape.
func FromTask(t dispatch.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		SupplierID:    t.SupplierID,
		Category:      t.Category,
		Status:        t.Status,
		AttemptCount:  t.AttemptCount,
		MaxAttempts:   t.MaxAttempts,
		LastError:     t.LastError,
		NeedsFollowUp: t.NeedsFollowUp,
		SentAt:        t.SentAt,
	}
}
