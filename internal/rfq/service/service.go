// Package service implements the RFQ lifecycle: requisition intake, line item
// materialization with category classification, and the send that fans out
// supplier notifications.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"procurement_backend/internal/classifier"
	"procurement_backend/internal/rfq/repository"
	"procurement_backend/platform/apperr"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Classifier assigns a category to one item.
type Classifier interface {
	Classify(ctx context.Context, name, spec string) (classifier.Classification, error)
}

// Store is the repository surface the service needs.
type Store interface {
	Create(ctx context.Context, requisitionID uuid.UUID, paymentTerms string) (*repository.RFQ, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.RFQ, error)
	ListRequisitionItems(ctx context.Context, requisitionID uuid.UUID) ([]repository.RequisitionItem, error)
	InsertLineItems(ctx context.Context, rfqID uuid.UUID, items []repository.LineItem) error
	ListLineItems(ctx context.Context, rfqID uuid.UUID) ([]repository.LineItem, error)
	SetClassificationStatus(ctx context.Context, rfqID uuid.UUID, status string) error
	SetStatus(ctx context.Context, rfqID uuid.UUID, status string) error
	MarkSent(ctx context.Context, rfqID uuid.UUID) error
	Close(ctx context.Context, rfqID uuid.UUID) error
	CreateRequisitionItems(ctx context.Context, items []repository.RequisitionItem) error
}

// FanOutPlanner materializes notification tasks for a classified RFQ and
// reports how many new tasks it created.
type FanOutPlanner interface {
	Plan(ctx context.Context, rfqID uuid.UUID) (int, error)
}

// Service orchestrates RFQs from requisition to sent.
type Service struct {
	repo        Store
	classifier  Classifier
	planner     FanOutPlanner
	log         *logger.Logger
	concurrency int
}

func New(repo Store, cls Classifier, planner FanOutPlanner, log *logger.Logger, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Service{
		repo:        repo,
		classifier:  cls,
		planner:     planner,
		log:         log,
		concurrency: concurrency,
	}
}

// CreateRFQ opens a draft RFQ, storing the requisition items it will quote.
func (s *Service) CreateRFQ(ctx context.Context, requisitionID uuid.UUID, paymentTerms string, items []repository.RequisitionItem) (*repository.RFQ, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("an rfq needs at least one requisition item")
	}

	for i := range items {
		items[i].RequisitionID = requisitionID
	}
	if err := s.repo.CreateRequisitionItems(ctx, items); err != nil {
		return nil, fmt.Errorf("store requisition items: %w", err)
	}

	rfq, err := s.repo.Create(ctx, requisitionID, paymentTerms)
	if err != nil {
		return nil, fmt.Errorf("create rfq: %w", err)
	}

	if err := s.repo.SetStatus(ctx, rfq.ID, repository.StatusPending); err != nil {
		return nil, err
	}
	rfq.Status = repository.StatusPending

	s.log.WithRFQ(rfq.ID.String()).Info("rfq created", "requisitionId", requisitionID, "items", len(items))
	return rfq, nil
}

// Get returns an RFQ with its line items.
func (s *Service) Get(ctx context.Context, rfqID uuid.UUID) (*repository.RFQ, []repository.LineItem, error) {
	rfq, err := s.repo.GetByID(ctx, rfqID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListLineItems(ctx, rfqID)
	if err != nil {
		return nil, nil, err
	}
	return rfq, items, nil
}

// Materialize classifies the RFQ's requisition items and writes them as line
// items. Unclassifiable items land in the uncategorized bucket rather than
// blocking the run; the run only fails when every remote strategy was down
// for every item.
func (s *Service) Materialize(ctx context.Context, rfqID uuid.UUID) error {
	rfq, err := s.repo.GetByID(ctx, rfqID)
	if err != nil {
		return err
	}
	if rfq.Status == repository.StatusClosed {
		return apperr.Conflict("rfq is closed")
	}

	source, err := s.repo.ListRequisitionItems(ctx, rfq.RequisitionID)
	if err != nil {
		return fmt.Errorf("list requisition items: %w", err)
	}
	if len(source) == 0 {
		return apperr.Validation("rfq has no requisition items to materialize")
	}

	if err := s.repo.SetClassificationStatus(ctx, rfqID, repository.ClassificationProcessing); err != nil {
		return err
	}

	items := make([]repository.LineItem, len(source))
	var unavailable atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range source {
		g.Go(func() error {
			src := source[i]
			cls, err := s.classifier.Classify(gctx, src.Name, src.Specification)
			if err != nil {
				if !errors.Is(err, classifier.ErrUnavailable) {
					return err
				}
				unavailable.Add(1)
				s.log.WithRFQ(rfqID.String()).Warn("classifier unavailable, using fallback",
					"item", src.Name, "error", err)
			}

			var scores json.RawMessage
			if len(cls.Scores) > 0 {
				scores, _ = json.Marshal(cls.Scores)
			}
			items[i] = repository.LineItem{
				Name:                 src.Name,
				Specification:        src.Specification,
				Quantity:             src.Quantity,
				Unit:                 src.Unit,
				CategoryMajor:        cls.Major,
				CategoryMinor:        cls.Minor,
				ClassifyMethod:       string(cls.Method),
				ClassifyConfidence:   cls.Confidence,
				ClassificationScores: scores,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = s.repo.SetClassificationStatus(ctx, rfqID, repository.ClassificationFailed)
		return fmt.Errorf("classification run: %w", err)
	}

	if int(unavailable.Load()) == len(source) {
		// Total outage: every item classified blind. Keep the run failed so
		// an operator re-runs it instead of sending guesswork to suppliers.
		_ = s.repo.SetClassificationStatus(ctx, rfqID, repository.ClassificationFailed)
		return apperr.Unavailable("classifier is unavailable, materialization aborted")
	}

	if err := s.repo.InsertLineItems(ctx, rfqID, items); err != nil {
		_ = s.repo.SetClassificationStatus(ctx, rfqID, repository.ClassificationFailed)
		return fmt.Errorf("insert line items: %w", err)
	}

	if err := s.repo.SetClassificationStatus(ctx, rfqID, repository.ClassificationCompleted); err != nil {
		return err
	}

	s.log.WithRFQ(rfqID.String()).Info("rfq materialized",
		"items", len(items), "classifierOutages", unavailable.Load())
	return nil
}

// Dispatch sends the RFQ to suppliers: materialize if not yet classified,
// plan the notification fan-out, and mark the RFQ sent. Returns the number
// of newly created notification tasks; re-dispatching an already-sent RFQ
// creates nothing new.
func (s *Service) Dispatch(ctx context.Context, rfqID uuid.UUID) (int, error) {
	rfq, err := s.repo.GetByID(ctx, rfqID)
	if err != nil {
		return 0, err
	}

	if rfq.ClassificationStatus != repository.ClassificationCompleted {
		if err := s.Materialize(ctx, rfqID); err != nil {
			return 0, err
		}
	}

	created, err := s.planner.Plan(ctx, rfqID)
	if err != nil {
		return 0, fmt.Errorf("plan fan-out: %w", err)
	}

	if err := s.repo.MarkSent(ctx, rfqID); err != nil {
		return 0, err
	}

	s.log.WithRFQ(rfqID.String()).Info("rfq dispatched", "tasksCreated", created)
	return created, nil
}

// Close finalizes an RFQ after quote collection.
func (s *Service) Close(ctx context.Context, rfqID uuid.UUID) error {
	return s.repo.Close(ctx, rfqID)
}
