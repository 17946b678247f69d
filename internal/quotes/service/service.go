// Package service provides business logic for the quote ledger.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"procurement_backend/internal/events"
	"procurement_backend/internal/quotes/repository"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

// Ledger is the repository surface the service needs.
type Ledger interface {
	EnsureSlot(ctx context.Context, supplierID, rfqID, lineItemID uuid.UUID) (*repository.Quote, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Quote, error)
	Submit(ctx context.Context, id uuid.UUID, payload json.RawMessage, paymentTerms string) (*repository.Quote, error)
	Decide(ctx context.Context, id uuid.UUID, status string) (*repository.Quote, error)
	ListByRFQ(ctx context.Context, rfqID uuid.UUID) ([]repository.Quote, error)
	LineItemCategory(ctx context.Context, lineItemID uuid.UUID) (string, error)
}

// TaskFinisher marks the notification task covering a submission as finished.
type TaskFinisher interface {
	MarkSuccess(ctx context.Context, rfqID, supplierID uuid.UUID, category string) error
}

// RFQProgressor advances the RFQ lifecycle as quotes arrive.
type RFQProgressor interface {
	MarkCollecting(ctx context.Context, rfqID uuid.UUID) error
}

// Service provides business logic for quotes.
type Service struct {
	ledger Ledger
	tasks  TaskFinisher
	rfqs   RFQProgressor
	bus    events.Bus
	log    *logger.Logger
}

// New creates a new quotes service.
func New(ledger Ledger, tasks TaskFinisher, rfqs RFQProgressor, log *logger.Logger) *Service {
	return &Service{ledger: ledger, tasks: tasks, rfqs: rfqs, log: log}
}

// SetEventBus injects the event bus.
func (s *Service) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// EnsureSlot reserves (or retrieves) the quote slot for a (supplier, rfq,
// line item) triple. Idempotent and race-safe; see the repository.
func (s *Service) EnsureSlot(ctx context.Context, supplierID, rfqID, lineItemID uuid.UUID) (*repository.Quote, error) {
	return s.ledger.EnsureSlot(ctx, supplierID, rfqID, lineItemID)
}

// Submit records a supplier's quote for one line item. The slot is ensured
// first, so a submission racing the planner still lands on exactly one row.
// A non-pending slot rejects the submission with a conflict.
func (s *Service) Submit(ctx context.Context, supplierID, rfqID, lineItemID uuid.UUID, payload json.RawMessage, paymentTerms string) (*repository.Quote, error) {
	slot, err := s.ledger.EnsureSlot(ctx, supplierID, rfqID, lineItemID)
	if err != nil {
		return nil, err
	}

	quote, err := s.ledger.Submit(ctx, slot.ID, payload, paymentTerms)
	if err != nil {
		return nil, err
	}

	category, err := s.ledger.LineItemCategory(ctx, lineItemID)
	if err != nil {
		return nil, fmt.Errorf("resolve line item category: %w", err)
	}

	// A submission finishes the covering task and moves the RFQ into
	// collecting; both are conditional no-ops when already progressed.
	if s.tasks != nil {
		if err := s.tasks.MarkSuccess(ctx, rfqID, supplierID, category); err != nil && s.log != nil {
			s.log.Warn("failed to finish covering task", "rfq_id", rfqID, "supplier_id", supplierID, "error", err)
		}
	}
	if s.rfqs != nil {
		if err := s.rfqs.MarkCollecting(ctx, rfqID); err != nil && s.log != nil {
			s.log.Warn("failed to advance rfq to collecting", "rfq_id", rfqID, "error", err)
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.QuoteSubmitted{
			BaseEvent:  events.NewBaseEvent(),
			QuoteID:    quote.ID,
			RFQID:      rfqID,
			SupplierID: supplierID,
			LineItemID: lineItemID,
			Category:   category,
		})
	}

	return quote, nil
}

// Award marks a submitted quote awarded.
func (s *Service) Award(ctx context.Context, id uuid.UUID) (*repository.Quote, error) {
	return s.ledger.Decide(ctx, id, repository.StatusAwarded)
}

// Reject marks a submitted quote rejected.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*repository.Quote, error) {
	return s.ledger.Decide(ctx, id, repository.StatusRejected)
}

// ListByRFQ returns an RFQ's quotes.
func (s *Service) ListByRFQ(ctx context.Context, rfqID uuid.UUID) ([]repository.Quote, error) {
	return s.ledger.ListByRFQ(ctx, rfqID)
}
