package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	rfqrepo "procurement_backend/internal/rfq/repository"
	suprepo "procurement_backend/internal/suppliers/repository"
	"procurement_backend/platform/apperr"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeTaskStore struct {
	task *Task

	hasSlot     bool
	hasSlotErr  error
	claimErr    error
	markSentID  *uuid.UUID
	markSentMsg string
	failedID    *uuid.UUID
	failReason  string

	attemptStatus string
	attemptCount  int
	recordedAt    time.Time
	recordReason  string
}

func (f *fakeTaskStore) ClaimForDelivery(ctx context.Context, id uuid.UUID) (*Task, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.task, nil
}

func (f *fakeTaskStore) HasQuoteSlot(ctx context.Context, rfqID, supplierID uuid.UUID, category string) (bool, error) {
	return f.hasSlot, f.hasSlotErr
}

func (f *fakeTaskStore) MarkSent(ctx context.Context, id uuid.UUID, channelMessageID string) error {
	f.markSentID = &id
	f.markSentMsg = channelMessageID
	return nil
}

func (f *fakeTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	f.failedID = &id
	f.failReason = reason
	return nil
}

func (f *fakeTaskStore) RecordAttemptFailure(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) (string, int, error) {
	f.recordReason = reason
	f.recordedAt = nextAttemptAt
	return f.attemptStatus, f.attemptCount, nil
}

type fakeRFQSource struct {
	rfq   *rfqrepo.RFQ
	err   error
	items []rfqrepo.LineItem
}

func (f *fakeRFQSource) GetByID(ctx context.Context, id uuid.UUID) (*rfqrepo.RFQ, error) {
	return f.rfq, f.err
}

func (f *fakeRFQSource) ListLineItems(ctx context.Context, rfqID uuid.UUID) ([]rfqrepo.LineItem, error) {
	return f.items, nil
}

type fakeSupplierSource struct {
	supplier *suprepo.Supplier
	err      error
}

func (f *fakeSupplierSource) GetByID(ctx context.Context, id uuid.UUID) (*suprepo.Supplier, error) {
	return f.supplier, f.err
}

type fakeChannel struct {
	messageID string
	err       error
	delivered []string
}

func (f *fakeChannel) Deliver(ctx context.Context, phone, message string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.delivered = append(f.delivered, message)
	return f.messageID, nil
}

func testTask() *Task {
	return &Task{
		ID:           uuid.New(),
		RFQID:        uuid.New(),
		SupplierID:   uuid.New(),
		Category:     "metals/steel",
		Status:       StatusDelivering,
		AttemptCount: 0,
		MaxAttempts:  5,
	}
}

func testDeliverer(store *fakeTaskStore, rfqs *fakeRFQSource, sups *fakeSupplierSource, ch *fakeChannel) *Deliverer {
	return NewDeliverer(DelivererConfig{
		Tasks:     store,
		RFQs:      rfqs,
		Suppliers: sups,
		Channel:   ch,
		Backoff:   Backoff{Policy: "fixed", Base: 2 * time.Minute},
	}, logger.New("development"))
}

func TestAttemptSkipsWhenClaimLost(t *testing.T) {
	store := &fakeTaskStore{task: nil}
	d := testDeliverer(store, &fakeRFQSource{}, &fakeSupplierSource{}, &fakeChannel{})

	res := d.Attempt(context.Background(), uuid.New())
	if res.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped outcome, got %s", res.Outcome)
	}
	if res.Err != nil {
		t.Fatalf("lost claim should not be an error, got %v", res.Err)
	}
}

func TestAttemptDeliversAndMarksSent(t *testing.T) {
	task := testTask()
	store := &fakeTaskStore{task: task, hasSlot: true}
	rfqs := &fakeRFQSource{
		rfq: &rfqrepo.RFQ{ID: task.RFQID, PaymentTerms: "net 30"},
		items: []rfqrepo.LineItem{
			{Name: "steel rod", Quantity: 10, Unit: "pcs", CategoryMajor: "metals", CategoryMinor: "steel"},
			{Name: "unrelated", Quantity: 1, Unit: "pcs", CategoryMajor: "electronics"},
		},
	}
	sups := &fakeSupplierSource{supplier: &suprepo.Supplier{ID: task.SupplierID, Name: "Acme", ContactPhone: "+8613800138000"}}
	ch := &fakeChannel{messageID: "wamid.42"}

	res := testDeliverer(store, rfqs, sups, ch).Attempt(context.Background(), task.ID)
	if res.Outcome != OutcomeDelivered {
		t.Fatalf("expected delivered, got %s (err %v)", res.Outcome, res.Err)
	}
	if store.markSentID == nil || *store.markSentID != task.ID {
		t.Fatal("expected MarkSent on the claimed task")
	}
	if store.markSentMsg != "wamid.42" {
		t.Fatalf("expected channel message id recorded, got %q", store.markSentMsg)
	}
	if len(ch.delivered) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(ch.delivered))
	}
}

func TestAttemptFatalOnMissingRFQ(t *testing.T) {
	task := testTask()
	store := &fakeTaskStore{task: task, hasSlot: true}
	rfqs := &fakeRFQSource{err: apperr.NotFound("rfq not found")}
	sups := &fakeSupplierSource{supplier: &suprepo.Supplier{}}

	res := testDeliverer(store, rfqs, sups, &fakeChannel{}).Attempt(context.Background(), task.ID)
	if res.Outcome != OutcomeFatalFailure || !res.Terminal {
		t.Fatalf("expected terminal fatal failure, got %s terminal=%v", res.Outcome, res.Terminal)
	}
	if store.failedID == nil {
		t.Fatal("expected MarkFailed")
	}
	if store.recordReason != "" {
		t.Fatal("fatal failure must not consume a delivery attempt")
	}
}

func TestAttemptFatalOnMissingQuoteSlot(t *testing.T) {
	task := testTask()
	store := &fakeTaskStore{task: task, hasSlot: false}
	rfqs := &fakeRFQSource{rfq: &rfqrepo.RFQ{ID: task.RFQID}}
	sups := &fakeSupplierSource{supplier: &suprepo.Supplier{ID: task.SupplierID}}

	res := testDeliverer(store, rfqs, sups, &fakeChannel{}).Attempt(context.Background(), task.ID)
	if res.Outcome != OutcomeFatalFailure || !res.Terminal {
		t.Fatalf("expected terminal fatal failure, got %s", res.Outcome)
	}
	if store.failReason != "no quote invitation found" {
		t.Fatalf("unexpected failure reason %q", store.failReason)
	}
}

func TestAttemptTransientFailureSchedulesRetry(t *testing.T) {
	task := testTask()
	store := &fakeTaskStore{task: task, hasSlot: true, attemptStatus: StatusPending, attemptCount: 1}
	rfqs := &fakeRFQSource{rfq: &rfqrepo.RFQ{ID: task.RFQID}}
	sups := &fakeSupplierSource{supplier: &suprepo.Supplier{ID: task.SupplierID, ContactPhone: "+8613800138000"}}
	ch := &fakeChannel{err: errors.New("gateway timeout")}

	d := testDeliverer(store, rfqs, sups, ch)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	res := d.Attempt(context.Background(), task.ID)
	if res.Outcome != OutcomeTransientFailure || res.Terminal {
		t.Fatalf("expected non-terminal transient failure, got %s terminal=%v", res.Outcome, res.Terminal)
	}
	want := now.Add(2 * time.Minute)
	if !store.recordedAt.Equal(want) {
		t.Fatalf("expected retry at %v, got %v", want, store.recordedAt)
	}
	if !res.NextAttemptAt.Equal(want) {
		t.Fatalf("expected result to carry retry time %v, got %v", want, res.NextAttemptAt)
	}
}

func TestAttemptTransientFailureGoesTerminalAtCeiling(t *testing.T) {
	task := testTask()
	task.AttemptCount = 4
	store := &fakeTaskStore{task: task, hasSlot: true, attemptStatus: StatusFailed, attemptCount: 5}
	rfqs := &fakeRFQSource{rfq: &rfqrepo.RFQ{ID: task.RFQID}}
	sups := &fakeSupplierSource{supplier: &suprepo.Supplier{ID: task.SupplierID}}
	ch := &fakeChannel{err: errors.New("gateway down")}

	res := testDeliverer(store, rfqs, sups, ch).Attempt(context.Background(), task.ID)
	if res.Outcome != OutcomeTransientFailure || !res.Terminal {
		t.Fatalf("expected terminal transient failure at retry ceiling, got %s terminal=%v", res.Outcome, res.Terminal)
	}
	if !res.NextAttemptAt.IsZero() {
		t.Fatal("terminal failure must not schedule another attempt")
	}
}

func TestBackoffFixed(t *testing.T) {
	b := Backoff{Policy: "fixed", Base: time.Minute}
	for attempt := 1; attempt <= 5; attempt++ {
		if got := b.Next(attempt); got != time.Minute {
			t.Fatalf("fixed backoff attempt %d: got %v", attempt, got)
		}
	}
}

func TestBackoffExponentialCapped(t *testing.T) {
	b := Backoff{Policy: "exponential", Base: 10 * time.Minute}
	if got := b.Next(1); got != 10*time.Minute {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := b.Next(2); got != 20*time.Minute {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := b.Next(10); got != time.Hour {
		t.Fatalf("attempt 10 should cap at one hour, got %v", got)
	}
}
