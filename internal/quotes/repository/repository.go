// Package repository provides database access for the quote ledger.
// The ledger owns the uniqueness invariant over (supplier, rfq, line item);
// it is enforced by a unique index, never by application logic alone.
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

// Quote statuses.
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusAwarded   = "awarded"
	StatusRejected  = "rejected"
)

// Quote is the database model for one quote slot.
type Quote struct {
	ID           uuid.UUID       `db:"id"`
	RFQID        uuid.UUID       `db:"rfq_id"`
	SupplierID   uuid.UUID       `db:"supplier_id"`
	LineItemID   uuid.UUID       `db:"line_item_id"`
	Status       string          `db:"status"`
	Payload      json.RawMessage `db:"payload"`
	PaymentTerms string          `db:"payment_terms"`
	SubmittedAt  *time.Time      `db:"submitted_at"`
	DecidedAt    *time.Time      `db:"decided_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

const quoteColumns = `id, rfq_id, supplier_id, line_item_id, status, payload, payment_terms,
	submitted_at, decided_at, created_at, updated_at`

// DB is the pool subset the repository queries through.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Repository provides database operations for quotes.
type Repository struct {
	pool DB
}

// New creates a new quotes repository.
func New(pool DB) *Repository {
	return &Repository{pool: pool}
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.RFQID, &q.SupplierID, &q.LineItemID, &q.Status, &q.Payload,
		&q.PaymentTerms, &q.SubmittedAt, &q.DecidedAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// EnsureSlot get-or-creates the quote slot for (supplier, rfq, line item).
// Safe under concurrent invocation: the insert defers to the unique index,
// and the loser of a race reads the winner's row instead of erroring.
func (r *Repository) EnsureSlot(ctx context.Context, supplierID, rfqID, lineItemID uuid.UUID) (*Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx,
		`INSERT INTO quotes (rfq_id, supplier_id, line_item_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (supplier_id, rfq_id, line_item_id) DO NOTHING
		 RETURNING `+quoteColumns,
		rfqID, supplierID, lineItemID,
	))
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ensure quote slot: %w", err)
	}

	// Conflict: another creator won; return their row.
	return r.GetSlot(ctx, supplierID, rfqID, lineItemID)
}

// GetSlot returns the quote for (supplier, rfq, line item).
func (r *Repository) GetSlot(ctx context.Context, supplierID, rfqID, lineItemID uuid.UUID) (*Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx,
		`SELECT `+quoteColumns+`
		 FROM quotes
		 WHERE supplier_id = $1 AND rfq_id = $2 AND line_item_id = $3`,
		supplierID, rfqID, lineItemID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("quote not found")
	}
	return q, err
}

// GetByID returns one quote.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("quote not found")
	}
	return q, err
}

// Submit records a supplier submission against a pending slot. The update is
// conditional on status: a row that exists but is no longer pending yields a
// conflict, so awarded or rejected records are never rewritten.
func (r *Repository) Submit(ctx context.Context, id uuid.UUID, payload json.RawMessage, paymentTerms string) (*Quote, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	q, err := scanQuote(r.pool.QueryRow(ctx,
		`UPDATE quotes
		 SET status = $2, payload = $3, payment_terms = $4, submitted_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $5
		 RETURNING `+quoteColumns,
		id, StatusSubmitted, payload, paymentTerms, StatusPending,
	))
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperr.Conflict(fmt.Sprintf("quote is %s and cannot be resubmitted", existing.Status))
}

// Decide transitions a submitted quote to awarded or rejected.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, status string) (*Quote, error) {
	if status != StatusAwarded && status != StatusRejected {
		return nil, apperr.BadRequest("decision must be awarded or rejected")
	}

	q, err := scanQuote(r.pool.QueryRow(ctx,
		`UPDATE quotes
		 SET status = $2, decided_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING `+quoteColumns,
		id, status, StatusSubmitted,
	))
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperr.Conflict(fmt.Sprintf("quote is %s, only submitted quotes can be decided", existing.Status))
}

// ListByRFQ returns all quotes of an RFQ.
func (r *Repository) ListByRFQ(ctx context.Context, rfqID uuid.UUID) ([]Quote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE rfq_id = $1 ORDER BY created_at`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

// LineItemCategory returns the category path of a line item, for resolving
// which notification task a submission covers.
func (r *Repository) LineItemCategory(ctx context.Context, lineItemID uuid.UUID) (string, error) {
	var major, minor string
	err := r.pool.QueryRow(ctx,
		`SELECT category_major, category_minor FROM rfq_line_items WHERE id = $1`,
		lineItemID,
	).Scan(&major, &minor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("line item not found")
		}
		return "", err
	}
	if minor == "" {
		return major, nil
	}
	return major + "/" + minor, nil
}
