package nudge

import (
	"context"
	"fmt"
	"time"

	"procurement_backend/internal/events"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the nudge persistence surface the engine drives.
type Store interface {
	FindStalled(ctx context.Context, sentBefore time.Time, limit int) ([]StalledTask, error)
	Open(ctx context.Context, taskID uuid.UUID) (*Nudge, error)
	ListDue(ctx context.Context, lastSentBefore time.Time, limit int) ([]Nudge, error)
	RecordSent(ctx context.Context, id uuid.UUID, message string) (*Nudge, error)
	Close(ctx context.Context, id uuid.UUID, reason string) error
	CloseForTask(ctx context.Context, taskID uuid.UUID, reason string) (int, error)
	CloseQuoted(ctx context.Context, rfqID, supplierID uuid.UUID, category string) (int, error)
	CloseSatisfied(ctx context.Context) (int, error)
	StalledContext(ctx context.Context, nudgeID uuid.UUID) (*StalledTask, error)
}

// TaskFlagger marks notification tasks for manual follow-up.
type TaskFlagger interface {
	FlagFollowUp(ctx context.Context, id uuid.UUID) error
}

// Reminder is one staff-facing escalation message.
type Reminder struct {
	SupplierName  string
	Category      string
	RFQID         uuid.UUID
	RequisitionID uuid.UUID
	NudgeCount    int
	MaxNudges     int
	SentAt        *time.Time
}

// StaffChannel delivers reminders and exhaustion alerts to the procurement team.
type StaffChannel interface {
	SendReminder(ctx context.Context, reminder Reminder) error
	SendFollowUpAlert(ctx context.Context, reminder Reminder) error
}

// Engine runs the escalation scan: open nudges for stalled tasks, advance
// due ones through the staff channel, and retire exhausted ones.
type Engine struct {
	store   Store
	tasks   TaskFlagger
	staff   StaffChannel
	bus     events.Bus
	log     *logger.Logger
	grace   time.Duration
	between time.Duration

	now func() time.Time
}

func NewEngine(store Store, tasks TaskFlagger, staff StaffChannel, bus events.Bus, log *logger.Logger, grace, between time.Duration) *Engine {
	return &Engine{
		store:   store,
		tasks:   tasks,
		staff:   staff,
		bus:     bus,
		log:     log,
		grace:   grace,
		between: between,
		now:     time.Now,
	}
}

// RegisterHandlers subscribes the engine to the events it reacts to.
func (e *Engine) RegisterHandlers(bus events.Bus) {
	bus.Subscribe("quotes.quote.submitted", events.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		submitted, ok := ev.(events.QuoteSubmitted)
		if !ok {
			return nil
		}
		return e.handleQuoteSubmitted(ctx, submitted)
	}))
}

func (e *Engine) handleQuoteSubmitted(ctx context.Context, ev events.QuoteSubmitted) error {
	closed, err := e.store.CloseQuoted(ctx, ev.RFQID, ev.SupplierID, ev.Category)
	if err != nil {
		return fmt.Errorf("close nudges for submitted quote: %w", err)
	}
	if closed > 0 {
		e.log.Info("nudges closed by submitted quote",
			"rfqId", ev.RFQID, "supplierId", ev.SupplierID, "category", ev.Category, "closed", closed)
	}
	return nil
}

// Scan runs one escalation pass. Individual failures are logged and left for
// the next pass; only infrastructure errors that abort the whole pass
// propagate.
func (e *Engine) Scan(ctx context.Context) error {
	now := e.now()

	// Quotes that arrived while the process was down close their nudges here
	// rather than waiting on an event that already fired.
	if closed, err := e.store.CloseSatisfied(ctx); err != nil {
		return fmt.Errorf("close satisfied nudges: %w", err)
	} else if closed > 0 {
		e.log.Info("satisfied nudges closed", "closed", closed)
	}

	stalled, err := e.store.FindStalled(ctx, now.Add(-e.grace), 200)
	if err != nil {
		return fmt.Errorf("find stalled tasks: %w", err)
	}
	for _, st := range stalled {
		opened, err := e.store.Open(ctx, st.TaskID)
		if err != nil {
			e.log.Error("failed to open nudge", "taskId", st.TaskID, "error", err)
			continue
		}
		if opened != nil {
			e.log.Info("nudge opened", "nudgeId", opened.ID, "taskId", st.TaskID,
				"supplier", st.SupplierName, "category", st.Category)
		}
	}

	due, err := e.store.ListDue(ctx, now.Add(-e.between), 200)
	if err != nil {
		return fmt.Errorf("list due nudges: %w", err)
	}
	for _, n := range due {
		if err := e.advance(ctx, n); err != nil {
			e.log.Error("failed to advance nudge", "nudgeId", n.ID, "error", err)
		}
	}
	return nil
}

func (e *Engine) advance(ctx context.Context, n Nudge) error {
	st, err := e.store.StalledContext(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("load nudge context: %w", err)
	}
	if st == nil {
		// Task vanished underneath the nudge; nothing left to remind about.
		_, err := e.store.CloseForTask(ctx, n.TaskID, CloseReasonQuoteSubmitted)
		return err
	}

	reminder := Reminder{
		SupplierName:  st.SupplierName,
		Category:      st.Category,
		RFQID:         st.RFQID,
		RequisitionID: st.RequisitionID,
		NudgeCount:    n.NudgeCount + 1,
		MaxNudges:     n.MaxNudges,
		SentAt:        st.SentAt,
	}
	if err := e.staff.SendReminder(ctx, reminder); err != nil {
		// Delivery failures do not consume the nudge budget; the next scan
		// picks this nudge up again.
		return fmt.Errorf("send reminder: %w", err)
	}

	message := fmt.Sprintf("reminder %d/%d: %s has not quoted on %s",
		reminder.NudgeCount, n.MaxNudges, st.SupplierName, st.Category)
	updated, err := e.store.RecordSent(ctx, n.ID, message)
	if err != nil {
		return fmt.Errorf("record nudge sent: %w", err)
	}
	if updated == nil {
		// Closed or exhausted by a concurrent scan between list and send.
		return nil
	}
	e.log.Info("nudge sent", "nudgeId", updated.ID, "taskId", updated.TaskID,
		"count", updated.NudgeCount, "max", updated.MaxNudges)

	if updated.NudgeCount < updated.MaxNudges {
		return nil
	}

	if err := e.store.Close(ctx, updated.ID, CloseReasonExhausted); err != nil {
		return fmt.Errorf("close exhausted nudge: %w", err)
	}
	if err := e.tasks.FlagFollowUp(ctx, updated.TaskID); err != nil {
		return fmt.Errorf("flag task for follow-up: %w", err)
	}
	e.log.Warn("nudge budget exhausted, task flagged for follow-up",
		"nudgeId", updated.ID, "taskId", updated.TaskID, "count", updated.NudgeCount)
	reminder.NudgeCount = updated.NudgeCount
	if err := e.staff.SendFollowUpAlert(ctx, reminder); err != nil {
		e.log.Error("failed to send follow-up alert", "nudgeId", updated.ID, "error", err)
	}
	e.bus.Publish(ctx, events.NudgeExhausted{
		BaseEvent:  events.NewBaseEvent(),
		NudgeID:    updated.ID,
		TaskID:     updated.TaskID,
		RFQID:      st.RFQID,
		SupplierID: st.SupplierID,
		NudgeCount: updated.NudgeCount,
	})
	return nil
}
