package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"procurement_backend/internal/classifier"
	"procurement_backend/internal/rfq/repository"
	"procurement_backend/platform/apperr"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	rfq        *repository.RFQ
	sourceItem []repository.RequisitionItem

	inserted        []repository.LineItem
	classStatuses   []string
	statuses        []string
	markedSent      bool
	closed          bool
	createdReqItems []repository.RequisitionItem
}

func (f *fakeStore) Create(ctx context.Context, requisitionID uuid.UUID, paymentTerms string) (*repository.RFQ, error) {
	f.rfq = &repository.RFQ{ID: uuid.New(), RequisitionID: requisitionID, Status: repository.StatusDraft, PaymentTerms: paymentTerms}
	return f.rfq, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*repository.RFQ, error) {
	if f.rfq == nil {
		return nil, apperr.NotFound("rfq not found")
	}
	return f.rfq, nil
}

func (f *fakeStore) ListRequisitionItems(ctx context.Context, requisitionID uuid.UUID) ([]repository.RequisitionItem, error) {
	return f.sourceItem, nil
}

func (f *fakeStore) InsertLineItems(ctx context.Context, rfqID uuid.UUID, items []repository.LineItem) error {
	f.inserted = items
	return nil
}

func (f *fakeStore) ListLineItems(ctx context.Context, rfqID uuid.UUID) ([]repository.LineItem, error) {
	return f.inserted, nil
}

func (f *fakeStore) SetClassificationStatus(ctx context.Context, rfqID uuid.UUID, status string) error {
	f.classStatuses = append(f.classStatuses, status)
	if f.rfq != nil {
		f.rfq.ClassificationStatus = status
	}
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, rfqID uuid.UUID, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStore) MarkSent(ctx context.Context, rfqID uuid.UUID) error {
	f.markedSent = true
	return nil
}

func (f *fakeStore) Close(ctx context.Context, rfqID uuid.UUID) error {
	f.closed = true
	return nil
}

func (f *fakeStore) CreateRequisitionItems(ctx context.Context, items []repository.RequisitionItem) error {
	f.createdReqItems = items
	return nil
}

// fakeClassifier answers per-item from a canned table, defaulting to a
// rules-style fallback.
type fakeClassifier struct {
	answers map[string]classifier.Classification
	errs    map[string]error
	calls   atomic.Int64
}

func (f *fakeClassifier) Classify(ctx context.Context, name, spec string) (classifier.Classification, error) {
	f.calls.Add(1)
	if err, ok := f.errs[name]; ok {
		if cls, has := f.answers[name]; has {
			return cls, err
		}
		return classifier.Classification{Major: classifier.Uncategorized, Method: classifier.MethodFallback}, err
	}
	if cls, ok := f.answers[name]; ok {
		return cls, nil
	}
	return classifier.Classification{Major: classifier.Uncategorized, Method: classifier.MethodFallback, Confidence: 0.3}, nil
}

type fakePlanner struct {
	created int
	planned []uuid.UUID
	err     error
}

func (f *fakePlanner) Plan(ctx context.Context, rfqID uuid.UUID) (int, error) {
	f.planned = append(f.planned, rfqID)
	return f.created, f.err
}

func newTestStore() *fakeStore {
	reqID := uuid.New()
	return &fakeStore{
		rfq: &repository.RFQ{
			ID:                   uuid.New(),
			RequisitionID:        reqID,
			Status:               repository.StatusPending,
			ClassificationStatus: repository.ClassificationPending,
		},
		sourceItem: []repository.RequisitionItem{
			{ID: uuid.New(), RequisitionID: reqID, Name: "steel beam", Quantity: 10, Unit: "pcs"},
			{ID: uuid.New(), RequisitionID: reqID, Name: "copper wire", Quantity: 200, Unit: "m"},
		},
	}
}

func TestCreateRFQRejectsEmptyItems(t *testing.T) {
	svc := New(&fakeStore{}, &fakeClassifier{}, &fakePlanner{}, logger.New("development"), 2)

	_, err := svc.CreateRFQ(context.Background(), uuid.New(), "net 30", nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRFQStampsRequisitionID(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, &fakeClassifier{}, &fakePlanner{}, logger.New("development"), 2)
	reqID := uuid.New()

	rfq, err := svc.CreateRFQ(context.Background(), reqID, "net 30", []repository.RequisitionItem{
		{Name: "steel beam", Quantity: 10, Unit: "pcs"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rfq.Status != repository.StatusPending {
		t.Fatalf("expected pending rfq, got %s", rfq.Status)
	}
	if len(store.createdReqItems) != 1 || store.createdReqItems[0].RequisitionID != reqID {
		t.Fatal("requisition items must carry the requisition id")
	}
}

func TestMaterializeClassifiesAllItems(t *testing.T) {
	store := newTestStore()
	cls := &fakeClassifier{answers: map[string]classifier.Classification{
		"steel beam":  {Major: "metals", Minor: "steel", Confidence: 0.91, Method: classifier.MethodVector},
		"copper wire": {Major: "electrical", Minor: "cabling", Confidence: 0.85, Method: classifier.MethodAI},
	}}
	svc := New(store, cls, &fakePlanner{}, logger.New("development"), 2)

	if err := svc.Materialize(context.Background(), store.rfq.ID); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	if len(store.inserted) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(store.inserted))
	}
	byName := map[string]repository.LineItem{}
	for _, li := range store.inserted {
		byName[li.Name] = li
	}
	if byName["steel beam"].CategoryMajor != "metals" || byName["steel beam"].CategoryMinor != "steel" {
		t.Fatalf("steel beam misclassified: %+v", byName["steel beam"])
	}
	if got := store.classStatuses; len(got) != 2 || got[0] != repository.ClassificationProcessing || got[1] != repository.ClassificationCompleted {
		t.Fatalf("unexpected classification status trail: %v", got)
	}
}

func TestMaterializePartialOutageStillCompletes(t *testing.T) {
	store := newTestStore()
	cls := &fakeClassifier{
		answers: map[string]classifier.Classification{
			"steel beam":  {Major: "metals", Minor: "steel", Confidence: 0.91, Method: classifier.MethodVector},
			"copper wire": {Major: classifier.Uncategorized, Method: classifier.MethodFallback},
		},
		errs: map[string]error{"copper wire": fmt.Errorf("embed: %w", classifier.ErrUnavailable)},
	}
	svc := New(store, cls, &fakePlanner{}, logger.New("development"), 2)

	if err := svc.Materialize(context.Background(), store.rfq.ID); err != nil {
		t.Fatalf("one unreachable item must not abort the run: %v", err)
	}
	if store.rfq.ClassificationStatus != repository.ClassificationCompleted {
		t.Fatalf("expected completed, got %s", store.rfq.ClassificationStatus)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(store.inserted))
	}
}

func TestMaterializeTotalOutageFailsRun(t *testing.T) {
	store := newTestStore()
	cls := &fakeClassifier{errs: map[string]error{
		"steel beam":  fmt.Errorf("embed: %w", classifier.ErrUnavailable),
		"copper wire": fmt.Errorf("embed: %w", classifier.ErrUnavailable),
	}}
	svc := New(store, cls, &fakePlanner{}, logger.New("development"), 2)

	err := svc.Materialize(context.Background(), store.rfq.ID)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if store.rfq.ClassificationStatus != repository.ClassificationFailed {
		t.Fatalf("expected failed, got %s", store.rfq.ClassificationStatus)
	}
	if len(store.inserted) != 0 {
		t.Fatal("a failed run must not write line items")
	}
}

func TestMaterializeClosedRFQConflicts(t *testing.T) {
	store := newTestStore()
	store.rfq.Status = repository.StatusClosed
	svc := New(store, &fakeClassifier{}, &fakePlanner{}, logger.New("development"), 2)

	err := svc.Materialize(context.Background(), store.rfq.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDispatchMaterializesThenPlans(t *testing.T) {
	store := newTestStore()
	cls := &fakeClassifier{answers: map[string]classifier.Classification{
		"steel beam":  {Major: "metals", Minor: "steel", Confidence: 0.9, Method: classifier.MethodVector},
		"copper wire": {Major: "electrical", Minor: "cabling", Confidence: 0.9, Method: classifier.MethodVector},
	}}
	planner := &fakePlanner{created: 3}
	svc := New(store, cls, planner, logger.New("development"), 2)

	created, err := svc.Dispatch(context.Background(), store.rfq.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if created != 3 {
		t.Fatalf("expected 3 tasks created, got %d", created)
	}
	if got := cls.calls.Load(); got != 2 {
		t.Fatalf("expected one classification per item, got %d calls", got)
	}
	if !store.markedSent {
		t.Fatal("dispatch must mark the rfq sent")
	}
}

func TestDispatchSkipsMaterializeWhenClassified(t *testing.T) {
	store := newTestStore()
	store.rfq.ClassificationStatus = repository.ClassificationCompleted
	cls := &fakeClassifier{}
	planner := &fakePlanner{created: 1}
	svc := New(store, cls, planner, logger.New("development"), 2)

	if _, err := svc.Dispatch(context.Background(), store.rfq.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if cls.calls.Load() != 0 {
		t.Fatal("an already classified rfq must not be re-materialized")
	}
	if len(planner.planned) != 1 {
		t.Fatal("planner must run exactly once")
	}
}
