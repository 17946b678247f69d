package nudge

import (
	"context"
	"errors"
	"testing"
	"time"

	"procurement_backend/internal/events"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeNudgeStore struct {
	stalled   []StalledTask
	due       []Nudge
	contexts  map[uuid.UUID]*StalledTask
	maxNudges int

	opened        []uuid.UUID
	recorded      []uuid.UUID
	recordSentNil bool
	closed        map[uuid.UUID]string
	closedTasks   map[uuid.UUID]string
	closedQuoted  int
	satisfied     int
}

func newFakeNudgeStore() *fakeNudgeStore {
	return &fakeNudgeStore{
		contexts:    map[uuid.UUID]*StalledTask{},
		closed:      map[uuid.UUID]string{},
		closedTasks: map[uuid.UUID]string{},
		maxNudges:   3,
	}
}

func (f *fakeNudgeStore) FindStalled(ctx context.Context, sentBefore time.Time, limit int) ([]StalledTask, error) {
	return f.stalled, nil
}

func (f *fakeNudgeStore) Open(ctx context.Context, taskID uuid.UUID) (*Nudge, error) {
	f.opened = append(f.opened, taskID)
	return &Nudge{ID: uuid.New(), TaskID: taskID, Status: StatusPending, MaxNudges: f.maxNudges}, nil
}

func (f *fakeNudgeStore) ListDue(ctx context.Context, lastSentBefore time.Time, limit int) ([]Nudge, error) {
	return f.due, nil
}

func (f *fakeNudgeStore) RecordSent(ctx context.Context, id uuid.UUID, message string) (*Nudge, error) {
	if f.recordSentNil {
		return nil, nil
	}
	f.recorded = append(f.recorded, id)
	for i := range f.due {
		if f.due[i].ID == id {
			n := f.due[i]
			n.NudgeCount++
			n.Status = StatusSent
			return &n, nil
		}
	}
	return nil, nil
}

func (f *fakeNudgeStore) Close(ctx context.Context, id uuid.UUID, reason string) error {
	f.closed[id] = reason
	return nil
}

func (f *fakeNudgeStore) CloseForTask(ctx context.Context, taskID uuid.UUID, reason string) (int, error) {
	f.closedTasks[taskID] = reason
	return 1, nil
}

func (f *fakeNudgeStore) CloseQuoted(ctx context.Context, rfqID, supplierID uuid.UUID, category string) (int, error) {
	f.closedQuoted++
	return 1, nil
}

func (f *fakeNudgeStore) CloseSatisfied(ctx context.Context) (int, error) {
	return f.satisfied, nil
}

func (f *fakeNudgeStore) StalledContext(ctx context.Context, nudgeID uuid.UUID) (*StalledTask, error) {
	return f.contexts[nudgeID], nil
}

type fakeFlagger struct {
	flagged []uuid.UUID
}

func (f *fakeFlagger) FlagFollowUp(ctx context.Context, id uuid.UUID) error {
	f.flagged = append(f.flagged, id)
	return nil
}

type fakeStaff struct {
	reminders   []Reminder
	alerts      []Reminder
	reminderErr error
}

func (f *fakeStaff) SendReminder(ctx context.Context, r Reminder) error {
	if f.reminderErr != nil {
		return f.reminderErr
	}
	f.reminders = append(f.reminders, r)
	return nil
}

func (f *fakeStaff) SendFollowUpAlert(ctx context.Context, r Reminder) error {
	f.alerts = append(f.alerts, r)
	return nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, ev events.Event) {
	b.published = append(b.published, ev)
}

func (b *recordingBus) PublishSync(ctx context.Context, ev events.Event) error {
	b.published = append(b.published, ev)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {}

func newTestEngine(store *fakeNudgeStore, flagger *fakeFlagger, staff *fakeStaff, bus events.Bus) *Engine {
	return NewEngine(store, flagger, staff, bus, logger.New("development"), 24*time.Hour, 24*time.Hour)
}

func TestScanOpensNudgesForStalledTasks(t *testing.T) {
	store := newFakeNudgeStore()
	store.stalled = []StalledTask{
		{TaskID: uuid.New(), SupplierName: "Acme Metals", Category: "metals/steel"},
		{TaskID: uuid.New(), SupplierName: "Beta Cables", Category: "electrical/cabling"},
	}
	eng := newTestEngine(store, &fakeFlagger{}, &fakeStaff{}, &recordingBus{})

	if err := eng.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(store.opened) != 2 {
		t.Fatalf("expected 2 opened nudges, got %d", len(store.opened))
	}
}

func TestScanAdvancesDueNudge(t *testing.T) {
	store := newFakeNudgeStore()
	staff := &fakeStaff{}
	n := Nudge{ID: uuid.New(), TaskID: uuid.New(), Status: StatusPending, NudgeCount: 0, MaxNudges: 3}
	store.due = []Nudge{n}
	sentAt := time.Now().Add(-48 * time.Hour)
	store.contexts[n.ID] = &StalledTask{
		TaskID: n.TaskID, RFQID: uuid.New(), SupplierID: uuid.New(),
		SupplierName: "Acme Metals", Category: "metals/steel", SentAt: &sentAt,
	}
	eng := newTestEngine(store, &fakeFlagger{}, staff, &recordingBus{})

	if err := eng.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(staff.reminders) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(staff.reminders))
	}
	r := staff.reminders[0]
	if r.NudgeCount != 1 || r.MaxNudges != 3 || r.SupplierName != "Acme Metals" {
		t.Fatalf("unexpected reminder: %+v", r)
	}
	if len(store.recorded) != 1 {
		t.Fatal("reminder delivery must consume one nudge")
	}
	if len(store.closed) != 0 {
		t.Fatal("a nudge under its ceiling must stay open")
	}
}

func TestReminderFailureDoesNotConsumeBudget(t *testing.T) {
	store := newFakeNudgeStore()
	staff := &fakeStaff{reminderErr: errors.New("smtp down")}
	n := Nudge{ID: uuid.New(), TaskID: uuid.New(), Status: StatusPending, MaxNudges: 3}
	store.due = []Nudge{n}
	store.contexts[n.ID] = &StalledTask{TaskID: n.TaskID, SupplierName: "Acme Metals", Category: "metals/steel"}
	eng := newTestEngine(store, &fakeFlagger{}, staff, &recordingBus{})

	if err := eng.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(store.recorded) != 0 {
		t.Fatal("a failed reminder must not consume the nudge budget")
	}
}

func TestExhaustionFlagsTaskAndPublishes(t *testing.T) {
	store := newFakeNudgeStore()
	staff := &fakeStaff{}
	flagger := &fakeFlagger{}
	bus := &recordingBus{}
	n := Nudge{ID: uuid.New(), TaskID: uuid.New(), Status: StatusSent, NudgeCount: 2, MaxNudges: 3}
	store.due = []Nudge{n}
	store.contexts[n.ID] = &StalledTask{
		TaskID: n.TaskID, RFQID: uuid.New(), SupplierID: uuid.New(),
		SupplierName: "Acme Metals", Category: "metals/steel",
	}
	eng := newTestEngine(store, flagger, staff, bus)

	if err := eng.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if reason := store.closed[n.ID]; reason != CloseReasonExhausted {
		t.Fatalf("expected nudge closed as exhausted, got %q", reason)
	}
	if len(flagger.flagged) != 1 || flagger.flagged[0] != n.TaskID {
		t.Fatal("expected the task flagged for follow-up")
	}
	if len(staff.alerts) != 1 {
		t.Fatalf("expected 1 follow-up alert, got %d", len(staff.alerts))
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(bus.published))
	}
	ev, ok := bus.published[0].(events.NudgeExhausted)
	if !ok {
		t.Fatalf("expected NudgeExhausted, got %T", bus.published[0])
	}
	if ev.NudgeCount != 3 || ev.TaskID != n.TaskID {
		t.Fatalf("event carries wrong state: %+v", ev)
	}
}

func TestVanishedTaskClosesNudge(t *testing.T) {
	store := newFakeNudgeStore()
	staff := &fakeStaff{}
	n := Nudge{ID: uuid.New(), TaskID: uuid.New(), Status: StatusPending, MaxNudges: 3}
	store.due = []Nudge{n}
	eng := newTestEngine(store, &fakeFlagger{}, staff, &recordingBus{})

	if err := eng.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if reason := store.closedTasks[n.TaskID]; reason != CloseReasonQuoteSubmitted {
		t.Fatalf("expected quote_submitted close on the task, got %q", reason)
	}
	if len(staff.reminders) != 0 {
		t.Fatal("no reminder should go out for a vanished task")
	}
}

func TestConcurrentCloseStopsAdvance(t *testing.T) {
	store := newFakeNudgeStore()
	store.recordSentNil = true
	staff := &fakeStaff{}
	flagger := &fakeFlagger{}
	n := Nudge{ID: uuid.New(), TaskID: uuid.New(), Status: StatusPending, NudgeCount: 2, MaxNudges: 3}
	store.due = []Nudge{n}
	store.contexts[n.ID] = &StalledTask{TaskID: n.TaskID, SupplierName: "Acme Metals", Category: "metals/steel"}
	eng := newTestEngine(store, flagger, staff, &recordingBus{})

	if err := eng.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(flagger.flagged) != 0 || len(store.closed) != 0 {
		t.Fatal("a concurrently closed nudge must not be escalated further")
	}
}

func TestQuoteSubmittedEventClosesNudges(t *testing.T) {
	store := newFakeNudgeStore()
	bus := events.NewInMemoryBus(logger.New("development"))
	eng := newTestEngine(store, &fakeFlagger{}, &fakeStaff{}, bus)
	eng.RegisterHandlers(bus)

	err := bus.PublishSync(context.Background(), events.QuoteSubmitted{
		BaseEvent:  events.NewBaseEvent(),
		QuoteID:    uuid.New(),
		RFQID:      uuid.New(),
		SupplierID: uuid.New(),
		LineItemID: uuid.New(),
		Category:   "metals/steel",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if store.closedQuoted != 1 {
		t.Fatalf("expected one CloseQuoted call, got %d", store.closedQuoted)
	}
}
