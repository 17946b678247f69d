// Package repository provides database access for RFQs and their line items.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"procurement_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RFQ lifecycle states.
const (
	StatusDraft      = "draft"
	StatusPending    = "pending"
	StatusSent       = "sent"
	StatusCollecting = "collecting"
	StatusClosed     = "closed"
)

// Classification run states.
const (
	ClassificationPending    = "pending"
	ClassificationProcessing = "processing"
	ClassificationCompleted  = "completed"
	ClassificationFailed     = "failed"
)

// RFQ is the database model for a request for quotation.
type RFQ struct {
	ID                   uuid.UUID  `db:"id"`
	RequisitionID        uuid.UUID  `db:"requisition_id"`
	Status               string     `db:"status"`
	ClassificationStatus string     `db:"classification_status"`
	PaymentTerms         string     `db:"payment_terms"`
	SentAt               *time.Time `db:"sent_at"`
	ClosedAt             *time.Time `db:"closed_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// LineItem is the database model for one RFQ line item.
type LineItem struct {
	ID                   uuid.UUID       `db:"id"`
	RFQID                uuid.UUID       `db:"rfq_id"`
	Name                 string          `db:"name"`
	Specification        string          `db:"specification"`
	Quantity             float64         `db:"quantity"`
	Unit                 string          `db:"unit"`
	CategoryMajor        string          `db:"category_major"`
	CategoryMinor        string          `db:"category_minor"`
	ClassifyMethod       string          `db:"classify_method"`
	ClassifyConfidence   float64         `db:"classify_confidence"`
	ClassificationScores json.RawMessage `db:"classification_scores"`
	CreatedAt            time.Time       `db:"created_at"`
}

// Category returns the line item's major/minor path.
func (li LineItem) Category() string {
	if li.CategoryMinor == "" {
		return li.CategoryMajor
	}
	return li.CategoryMajor + "/" + li.CategoryMinor
}

// RequisitionItem is a source purchase-requisition item an RFQ snapshots from.
type RequisitionItem struct {
	ID            uuid.UUID `db:"id"`
	RequisitionID uuid.UUID `db:"requisition_id"`
	Name          string    `db:"name"`
	Specification string    `db:"specification"`
	Quantity      float64   `db:"quantity"`
	Unit          string    `db:"unit"`
}

const rfqColumns = `id, requisition_id, status, classification_status, payment_terms, sent_at, closed_at, created_at, updated_at`

// Repository provides database operations for RFQs.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new RFQ repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a draft RFQ for a requisition.
func (r *Repository) Create(ctx context.Context, requisitionID uuid.UUID, paymentTerms string) (*RFQ, error) {
	var rfq RFQ
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rfqs (requisition_id, payment_terms)
		 VALUES ($1, $2)
		 RETURNING `+rfqColumns,
		requisitionID, paymentTerms,
	).Scan(&rfq.ID, &rfq.RequisitionID, &rfq.Status, &rfq.ClassificationStatus, &rfq.PaymentTerms,
		&rfq.SentAt, &rfq.ClosedAt, &rfq.CreatedAt, &rfq.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rfq, nil
}

// GetByID returns one RFQ.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*RFQ, error) {
	var rfq RFQ
	err := r.pool.QueryRow(ctx,
		`SELECT `+rfqColumns+` FROM rfqs WHERE id = $1`, id,
	).Scan(&rfq.ID, &rfq.RequisitionID, &rfq.Status, &rfq.ClassificationStatus, &rfq.PaymentTerms,
		&rfq.SentAt, &rfq.ClosedAt, &rfq.CreatedAt, &rfq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("rfq not found")
		}
		return nil, err
	}
	return &rfq, nil
}

// ListRequisitionItems returns the source items for an RFQ's requisition.
func (r *Repository) ListRequisitionItems(ctx context.Context, requisitionID uuid.UUID) ([]RequisitionItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, requisition_id, name, specification, quantity, unit
		 FROM requisition_items WHERE requisition_id = $1 ORDER BY created_at`,
		requisitionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RequisitionItem
	for rows.Next() {
		var it RequisitionItem
		if err := rows.Scan(&it.ID, &it.RequisitionID, &it.Name, &it.Specification, &it.Quantity, &it.Unit); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertLineItems writes materialized line items in one transaction.
// Re-materializing an RFQ replaces its previous line items; once quote slots
// reference them, the RESTRICT foreign key refuses the replace rather than
// letting quote records vanish.
func (r *Repository) InsertLineItems(ctx context.Context, rfqID uuid.UUID, items []LineItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rfq_line_items WHERE rfq_id = $1`, rfqID); err != nil {
		return err
	}

	for i := range items {
		it := &items[i]
		scores := it.ClassificationScores
		if len(scores) == 0 {
			scores = json.RawMessage(`{}`)
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO rfq_line_items
			 (rfq_id, name, specification, quantity, unit, category_major, category_minor,
			  classify_method, classify_confidence, classification_scores)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id, created_at`,
			rfqID, it.Name, it.Specification, it.Quantity, it.Unit,
			it.CategoryMajor, it.CategoryMinor, it.ClassifyMethod, it.ClassifyConfidence, scores,
		).Scan(&it.ID, &it.CreatedAt)
		if err != nil {
			return err
		}
		it.RFQID = rfqID
	}

	return tx.Commit(ctx)
}

// ListLineItems returns an RFQ's line items.
func (r *Repository) ListLineItems(ctx context.Context, rfqID uuid.UUID) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, rfq_id, name, specification, quantity, unit, category_major, category_minor,
		        classify_method, classify_confidence, classification_scores, created_at
		 FROM rfq_line_items WHERE rfq_id = $1 ORDER BY created_at`,
		rfqID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.RFQID, &it.Name, &it.Specification, &it.Quantity, &it.Unit,
			&it.CategoryMajor, &it.CategoryMinor, &it.ClassifyMethod, &it.ClassifyConfidence,
			&it.ClassificationScores, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetClassificationStatus updates the classification run state.
func (r *Repository) SetClassificationStatus(ctx context.Context, rfqID uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE rfqs SET classification_status = $2, updated_at = now() WHERE id = $1`,
		rfqID, status,
	)
	return err
}

// SetStatus updates the RFQ lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, rfqID uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE rfqs SET status = $2, updated_at = now() WHERE id = $1`,
		rfqID, status,
	)
	return err
}

// MarkSent moves an RFQ to sent, stamping sent_at. The transition is only
// valid once the classification run completed; a claim against any other
// state updates nothing and reports a conflict.
func (r *Repository) MarkSent(ctx context.Context, rfqID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rfqs
		 SET status = $2, sent_at = COALESCE(sent_at, now()), updated_at = now()
		 WHERE id = $1
		   AND classification_status = $3
		   AND status IN ($4, $5)`,
		rfqID, StatusSent, ClassificationCompleted, StatusPending, StatusSent,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("rfq is not ready to be sent")
	}
	return nil
}

// MarkCollecting moves a sent RFQ to collecting on first quote submission.
// No-op when the RFQ already progressed.
func (r *Repository) MarkCollecting(ctx context.Context, rfqID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE rfqs SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		rfqID, StatusCollecting, StatusSent,
	)
	return err
}

// Close finalizes an RFQ.
func (r *Repository) Close(ctx context.Context, rfqID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rfqs
		 SET status = $2, closed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ($3, $4)`,
		rfqID, StatusClosed, StatusSent, StatusCollecting,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("rfq cannot be closed from its current state")
	}
	return nil
}

// CreateRequisitionItems inserts source requisition items (intake helper).
func (r *Repository) CreateRequisitionItems(ctx context.Context, items []RequisitionItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := range items {
		it := &items[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO requisition_items (requisition_id, name, specification, quantity, unit)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			it.RequisitionID, it.Name, it.Specification, it.Quantity, it.Unit,
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
