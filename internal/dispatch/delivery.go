package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"procurement_backend/internal/events"
	rfqrepo "procurement_backend/internal/rfq/repository"
	suprepo "procurement_backend/internal/suppliers/repository"
	"procurement_backend/platform/apperr"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

// Outcome is the result classification of one delivery attempt. It replaces
// exception-driven retry control flow: the caller inspects the outcome to
// decide what, if anything, happens next.
type Outcome int

const (
	// OutcomeSkipped means another worker already holds this attempt.
	OutcomeSkipped Outcome = iota
	// OutcomeDelivered means the notification reached the channel; the task
	// is now sent and awaiting a quote.
	OutcomeDelivered
	// OutcomeTransientFailure means the channel failed; the task was
	// rescheduled, or went terminal if the retry budget is spent.
	OutcomeTransientFailure
	// OutcomeFatalFailure means a data-integrity check failed; the task went
	// terminal immediately without consuming an attempt.
	OutcomeFatalFailure
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeTransientFailure:
		return "transient_failure"
	case OutcomeFatalFailure:
		return "fatal_failure"
	default:
		return "skipped"
	}
}

// Result describes what one delivery attempt did.
type Result struct {
	Outcome  Outcome
	Terminal bool
	Err      error
	// NextAttemptAt is set when a retry was scheduled.
	NextAttemptAt time.Time
}

// Fatal failure reasons. These indicate planning or data-integrity bugs that
// retrying cannot fix.
const (
	reasonEntityMissing = "referenced entity missing"
	reasonNoQuoteSlot   = "no quote invitation found"
)

// SupplierChannel delivers a rendered notification to a supplier contact.
type SupplierChannel interface {
	Deliver(ctx context.Context, phone, message string) (messageID string, err error)
}

// TaskStore is the slice of the repository the deliverer mutates tasks through.
type TaskStore interface {
	ClaimForDelivery(ctx context.Context, id uuid.UUID) (*Task, error)
	HasQuoteSlot(ctx context.Context, rfqID, supplierID uuid.UUID, category string) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, channelMessageID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	RecordAttemptFailure(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) (string, int, error)
}

// RFQSource loads the RFQ and line items a notification describes.
type RFQSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*rfqrepo.RFQ, error)
	ListLineItems(ctx context.Context, rfqID uuid.UUID) ([]rfqrepo.LineItem, error)
}

// SupplierSource resolves the recipient.
type SupplierSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*suprepo.Supplier, error)
}

// Backoff computes the delay before the next delivery attempt.
type Backoff struct {
	Policy string // "fixed" or "exponential"
	Base   time.Duration
}

// Next returns the delay for the given upcoming attempt number (1-based).
// Exponential doubles per attempt, capped at one hour.
func (b Backoff) Next(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 2 * time.Minute
	}
	if b.Policy != "exponential" {
		return base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= time.Hour {
			return time.Hour
		}
	}
	return delay
}

// Deliverer drives a single notification task through one delivery attempt.
type Deliverer struct {
	tasks     TaskStore
	rfqs      RFQSource
	suppliers SupplierSource
	channel   SupplierChannel
	backoff   Backoff
	timeout   time.Duration
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

// DelivererConfig wires a Deliverer.
type DelivererConfig struct {
	Tasks     TaskStore
	RFQs      RFQSource
	Suppliers SupplierSource
	Channel   SupplierChannel
	Backoff   Backoff
	Timeout   time.Duration
	Bus       events.Bus
}

// NewDeliverer creates a delivery state machine driver.
func NewDeliverer(cfg DelivererConfig, log *logger.Logger) *Deliverer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{
		tasks:     cfg.Tasks,
		rfqs:      cfg.RFQs,
		suppliers: cfg.Suppliers,
		channel:   cfg.Channel,
		backoff:   cfg.Backoff,
		timeout:   timeout,
		bus:       cfg.Bus,
		log:       log,
		now:       time.Now,
	}
}

// Attempt performs one delivery attempt for the task. The claim transition
// guarantees at most one attempt is in flight per task; a lost claim race
// yields OutcomeSkipped.
func (d *Deliverer) Attempt(ctx context.Context, taskID uuid.UUID) Result {
	task, err := d.tasks.ClaimForDelivery(ctx, taskID)
	if err != nil {
		return Result{Outcome: OutcomeSkipped, Err: fmt.Errorf("claim task: %w", err)}
	}
	if task == nil {
		return Result{Outcome: OutcomeSkipped}
	}

	// Data-integrity checks first: these are fatal, not retried, because no
	// number of retries makes a deleted RFQ or a missing placeholder reappear.
	rfq, err := d.rfqs.GetByID(ctx, task.RFQID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return d.failFatal(ctx, task, reasonEntityMissing)
		}
		return d.failTransient(ctx, task, fmt.Errorf("load rfq: %w", err))
	}

	supplier, err := d.suppliers.GetByID(ctx, task.SupplierID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return d.failFatal(ctx, task, reasonEntityMissing)
		}
		return d.failTransient(ctx, task, fmt.Errorf("load supplier: %w", err))
	}

	hasSlot, err := d.tasks.HasQuoteSlot(ctx, task.RFQID, task.SupplierID, task.Category)
	if err != nil {
		return d.failTransient(ctx, task, fmt.Errorf("check quote slot: %w", err))
	}
	if !hasSlot {
		return d.failFatal(ctx, task, reasonNoQuoteSlot)
	}

	items, err := d.rfqs.ListLineItems(ctx, task.RFQID)
	if err != nil {
		return d.failTransient(ctx, task, fmt.Errorf("load line items: %w", err))
	}

	message := renderNotification(rfq, supplier, task.Category, items)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	messageID, err := d.channel.Deliver(callCtx, supplier.ContactPhone, message)
	cancel()
	if err != nil {
		return d.failTransient(ctx, task, fmt.Errorf("channel delivery: %w", err))
	}

	if err := d.tasks.MarkSent(ctx, task.ID, messageID); err != nil {
		return Result{Outcome: OutcomeDelivered, Err: fmt.Errorf("mark sent: %w", err)}
	}

	if d.log != nil {
		d.log.DeliveryAttempt(task.ID.String(), OutcomeDelivered.String(), task.AttemptCount, nil)
	}
	return Result{Outcome: OutcomeDelivered}
}

func (d *Deliverer) failFatal(ctx context.Context, task *Task, reason string) Result {
	if err := d.tasks.MarkFailed(ctx, task.ID, reason); err != nil {
		return Result{Outcome: OutcomeFatalFailure, Terminal: true, Err: fmt.Errorf("mark failed: %w", err)}
	}

	d.publishFailure(ctx, task, reason, true)
	if d.log != nil {
		d.log.DeliveryAttempt(task.ID.String(), OutcomeFatalFailure.String(), task.AttemptCount, fmt.Errorf("%s", reason))
	}
	return Result{Outcome: OutcomeFatalFailure, Terminal: true}
}

func (d *Deliverer) failTransient(ctx context.Context, task *Task, cause error) Result {
	nextAttempt := task.AttemptCount + 1
	nextAt := d.now().Add(d.backoff.Next(nextAttempt))

	status, attempts, err := d.tasks.RecordAttemptFailure(ctx, task.ID, cause.Error(), nextAt)
	if err != nil {
		return Result{Outcome: OutcomeTransientFailure, Err: fmt.Errorf("record attempt failure: %w", err)}
	}

	terminal := status == StatusFailed
	if terminal {
		d.publishFailure(ctx, task, cause.Error(), false)
	}
	if d.log != nil {
		d.log.DeliveryAttempt(task.ID.String(), OutcomeTransientFailure.String(), attempts, cause)
	}

	res := Result{Outcome: OutcomeTransientFailure, Terminal: terminal, Err: cause}
	if !terminal {
		res.NextAttemptAt = nextAt
	}
	return res
}

func (d *Deliverer) publishFailure(ctx context.Context, task *Task, reason string, fatal bool) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, events.TaskDeliveryFailed{
		BaseEvent:  events.NewBaseEvent(),
		TaskID:     task.ID,
		RFQID:      task.RFQID,
		SupplierID: task.SupplierID,
		Category:   task.Category,
		Reason:     reason,
		Fatal:      fatal,
	})
}

// renderNotification builds the supplier-facing message for one task.
func renderNotification(rfq *rfqrepo.RFQ, supplier *suprepo.Supplier, category string, items []rfqrepo.LineItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n", supplier.Name)
	fmt.Fprintf(&b, "You are invited to quote on RFQ %s, category %s:\n", shortID(rfq.ID), category)

	for _, it := range items {
		if it.Category() != category {
			continue
		}
		fmt.Fprintf(&b, "- %s", it.Name)
		if it.Specification != "" {
			fmt.Fprintf(&b, " (%s)", it.Specification)
		}
		fmt.Fprintf(&b, " x %g %s\n", it.Quantity, it.Unit)
	}

	if rfq.PaymentTerms != "" {
		fmt.Fprintf(&b, "Payment terms: %s\n", rfq.PaymentTerms)
	}
	b.WriteString("Please reply with your quotation per item.")
	return b.String()
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return strings.ToUpper(s[:8])
}
