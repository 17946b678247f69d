package dispatch

import (
	"context"
	"testing"

	rfqrepo "procurement_backend/internal/rfq/repository"
	suprepo "procurement_backend/internal/suppliers/repository"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLineItems struct {
	items []rfqrepo.LineItem
}

func (f *fakeLineItems) ListLineItems(ctx context.Context, rfqID uuid.UUID) ([]rfqrepo.LineItem, error) {
	return f.items, nil
}

type fakeDirectory struct {
	byCategory map[string][]suprepo.Supplier
	queried    []string
}

func (f *fakeDirectory) ListEligible(ctx context.Context, category string) ([]suprepo.Supplier, error) {
	f.queried = append(f.queried, category)
	return f.byCategory[category], nil
}

type fakeFanOutStore struct {
	rfqID uuid.UUID
	seeds []TaskSeed
	slots []QuoteSlotSeed
}

func (f *fakeFanOutStore) InsertFanOut(ctx context.Context, rfqID uuid.UUID, tasks []TaskSeed, slots []QuoteSlotSeed) (int, error) {
	f.rfqID = rfqID
	f.seeds = tasks
	f.slots = slots
	return len(tasks), nil
}

// keyedFanOutStore keeps the same keys the database enforces: tasks unique on
// (rfq, supplier, category), slots unique on (supplier, line item). Inserting
// an existing tuple is a no-op, like ON CONFLICT DO NOTHING.
type keyedFanOutStore struct {
	tasks map[string]bool
	slots map[string]bool
}

func newKeyedFanOutStore() *keyedFanOutStore {
	return &keyedFanOutStore{tasks: map[string]bool{}, slots: map[string]bool{}}
}

func (f *keyedFanOutStore) InsertFanOut(ctx context.Context, rfqID uuid.UUID, tasks []TaskSeed, slots []QuoteSlotSeed) (int, error) {
	created := 0
	for _, s := range tasks {
		key := rfqID.String() + "/" + s.SupplierID.String() + "/" + s.Category
		if f.tasks[key] {
			continue
		}
		f.tasks[key] = true
		created++
	}
	for _, s := range slots {
		key := s.SupplierID.String() + "/" + s.LineItemID.String()
		f.slots[key] = true
	}
	return created, nil
}

func TestPlanFansOutPerSupplierCategory(t *testing.T) {
	steelA := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "metals", CategoryMinor: "steel"}
	steelB := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "metals", CategoryMinor: "steel"}
	chip := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "electronics"}

	supplierX := suprepo.Supplier{ID: uuid.New(), Name: "X"}
	supplierY := suprepo.Supplier{ID: uuid.New(), Name: "Y"}

	directory := &fakeDirectory{byCategory: map[string][]suprepo.Supplier{
		"metals/steel": {supplierX, supplierY},
		"electronics":  {supplierX},
	}}
	store := &fakeFanOutStore{}

	p := NewPlanner(&fakeLineItems{items: []rfqrepo.LineItem{steelA, steelB, chip}}, directory, store, logger.New("development"))

	rfqID := uuid.New()
	created, err := p.Plan(context.Background(), rfqID)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	// One task per (supplier, category): X gets steel and electronics, Y steel.
	if created != 3 || len(store.seeds) != 3 {
		t.Fatalf("expected 3 tasks, got created=%d seeds=%d", created, len(store.seeds))
	}

	// One quote slot per (supplier, line item): two steel items for two
	// suppliers plus one electronics item for one supplier.
	if len(store.slots) != 5 {
		t.Fatalf("expected 5 quote slots, got %d", len(store.slots))
	}

	seen := make(map[TaskSeed]bool)
	for _, s := range store.seeds {
		if seen[s] {
			t.Fatalf("duplicate task seed %+v", s)
		}
		seen[s] = true
	}
	if !seen[TaskSeed{SupplierID: supplierY.ID, Category: "metals/steel"}] {
		t.Fatal("missing steel task for supplier Y")
	}
}

func TestPlanRerunCreatesNoNewTasks(t *testing.T) {
	steelA := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "metals", CategoryMinor: "steel"}
	steelB := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "metals", CategoryMinor: "steel"}
	chip := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "electronics"}

	supplierX := suprepo.Supplier{ID: uuid.New(), Name: "X"}
	supplierY := suprepo.Supplier{ID: uuid.New(), Name: "Y"}

	directory := &fakeDirectory{byCategory: map[string][]suprepo.Supplier{
		"metals/steel": {supplierX, supplierY},
		"electronics":  {supplierX},
	}}
	store := newKeyedFanOutStore()

	p := NewPlanner(&fakeLineItems{items: []rfqrepo.LineItem{steelA, steelB, chip}}, directory, store, logger.New("development"))

	rfqID := uuid.New()
	created, err := p.Plan(context.Background(), rfqID)
	if err != nil {
		t.Fatalf("first plan: %v", err)
	}
	if created != 3 {
		t.Fatalf("expected 3 tasks on the first run, got %d", created)
	}

	created, err = p.Plan(context.Background(), rfqID)
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if created != 0 {
		t.Fatalf("re-running the planner must create nothing, got %d", created)
	}
	if len(store.tasks) != 3 || len(store.slots) != 5 {
		t.Fatalf("task set changed across runs: tasks=%d slots=%d", len(store.tasks), len(store.slots))
	}
}

func TestPlanResumesAfterPartialFanOut(t *testing.T) {
	steel := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "metals", CategoryMinor: "steel"}
	chip := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "electronics"}

	supplierX := suprepo.Supplier{ID: uuid.New(), Name: "X"}

	directory := &fakeDirectory{byCategory: map[string][]suprepo.Supplier{
		"metals/steel": {supplierX},
		"electronics":  {supplierX},
	}}
	store := newKeyedFanOutStore()
	rfqID := uuid.New()

	// One task already landed before the first run died.
	store.tasks[rfqID.String()+"/"+supplierX.ID.String()+"/electronics"] = true

	p := NewPlanner(&fakeLineItems{items: []rfqrepo.LineItem{steel, chip}}, directory, store, logger.New("development"))

	created, err := p.Plan(context.Background(), rfqID)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected only the missing task created, got %d", created)
	}
	if len(store.tasks) != 2 {
		t.Fatalf("expected 2 tasks total, got %d", len(store.tasks))
	}
}

func TestPlanEmptyRFQIsNoOp(t *testing.T) {
	store := &fakeFanOutStore{}
	p := NewPlanner(&fakeLineItems{}, &fakeDirectory{}, store, logger.New("development"))

	created, err := p.Plan(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if created != 0 || store.seeds != nil {
		t.Fatalf("expected no-op, got created=%d", created)
	}
}

func TestPlanSkipsCategoriesWithoutSuppliers(t *testing.T) {
	item := rfqrepo.LineItem{ID: uuid.New(), CategoryMajor: "uncategorized"}
	directory := &fakeDirectory{byCategory: map[string][]suprepo.Supplier{}}
	store := &fakeFanOutStore{}

	p := NewPlanner(&fakeLineItems{items: []rfqrepo.LineItem{item}}, directory, store, logger.New("development"))

	created, err := p.Plan(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected zero tasks without eligible suppliers, got %d", created)
	}
	if len(directory.queried) != 1 || directory.queried[0] != "uncategorized" {
		t.Fatalf("expected one directory lookup for uncategorized, got %v", directory.queried)
	}
}
