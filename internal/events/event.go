// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"procurement_backend/platform/events"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Quote Domain Events
// =============================================================================

// QuoteSubmitted is published when a supplier submits a quote for a line item.
// The nudge engine closes any open nudge on the covering task when it sees this.
type QuoteSubmitted struct {
	BaseEvent
	QuoteID    uuid.UUID `json:"quoteId"`
	RFQID      uuid.UUID `json:"rfqId"`
	SupplierID uuid.UUID `json:"supplierId"`
	LineItemID uuid.UUID `json:"lineItemId"`
	Category   string    `json:"category"`
}

func (e QuoteSubmitted) EventName() string { return "quotes.quote.submitted" }

// =============================================================================
// Dispatch Domain Events
// =============================================================================

// TaskDeliveryFailed is published when a notification task reaches terminal
// failed state, either fatally or after exhausting its retry budget.
type TaskDeliveryFailed struct {
	BaseEvent
	TaskID     uuid.UUID `json:"taskId"`
	RFQID      uuid.UUID `json:"rfqId"`
	SupplierID uuid.UUID `json:"supplierId"`
	Category   string    `json:"category"`
	Reason     string    `json:"reason"`
	Fatal      bool      `json:"fatal"`
}

func (e TaskDeliveryFailed) EventName() string { return "dispatch.task.delivery_failed" }

// =============================================================================
// Nudge Domain Events
// =============================================================================

// NudgeExhausted is published when a nudge hits its ceiling and the owning
// task is flagged for manual follow-up.
type NudgeExhausted struct {
	BaseEvent
	NudgeID    uuid.UUID `json:"nudgeId"`
	TaskID     uuid.UUID `json:"taskId"`
	RFQID      uuid.UUID `json:"rfqId"`
	SupplierID uuid.UUID `json:"supplierId"`
	NudgeCount int       `json:"nudgeCount"`
}

func (e NudgeExhausted) EventName() string { return "nudge.escalation.exhausted" }
