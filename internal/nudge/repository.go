// Package nudge escalates stalled notification tasks: suppliers who were
// notified but never quoted get a bounded number of staff reminders before
// the task is flagged for manual follow-up.
package nudge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Nudge lifecycle states.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusClosed  = "closed"
)

// Close reasons recorded when a nudge leaves the open set.
const (
	CloseReasonQuoteSubmitted = "quote_submitted"
	CloseReasonExhausted      = "exhausted"
)

// Nudge is the database model for one escalation thread on a task.
type Nudge struct {
	ID          uuid.UUID  `db:"id"`
	TaskID      uuid.UUID  `db:"task_id"`
	Status      string     `db:"status"`
	NudgeCount  int        `db:"nudge_count"`
	MaxNudges   int        `db:"max_nudges"`
	Message     string     `db:"message"`
	CloseReason *string    `db:"close_reason"`
	LastNudgeAt *time.Time `db:"last_nudge_at"`
	ClosedAt    *time.Time `db:"closed_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// StalledTask is a sent notification task whose supplier has not submitted
// any quote for the task's category, joined with enough context to render
// a reminder.
type StalledTask struct {
	TaskID        uuid.UUID  `db:"task_id"`
	RFQID         uuid.UUID  `db:"rfq_id"`
	RequisitionID uuid.UUID  `db:"requisition_id"`
	SupplierID    uuid.UUID  `db:"supplier_id"`
	SupplierName  string     `db:"supplier_name"`
	Category      string     `db:"category"`
	SentAt        *time.Time `db:"sent_at"`
}

const nudgeColumns = `id, task_id, status, nudge_count, max_nudges, message,
	close_reason, last_nudge_at, closed_at, created_at, updated_at`

// Repository provides database operations for supplier nudges.
type Repository struct {
	pool      *pgxpool.Pool
	maxNudges int
}

func NewRepository(pool *pgxpool.Pool, maxNudges int) *Repository {
	if maxNudges < 1 {
		maxNudges = 3
	}
	return &Repository{pool: pool, maxNudges: maxNudges}
}

func scanNudge(row pgx.Row) (*Nudge, error) {
	var n Nudge
	err := row.Scan(&n.ID, &n.TaskID, &n.Status, &n.NudgeCount, &n.MaxNudges, &n.Message,
		&n.CloseReason, &n.LastNudgeAt, &n.ClosedAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// FindStalled returns sent tasks older than the grace cutoff whose supplier
// has not submitted a quote for any line item in the task's category and
// that do not already carry an open nudge.
func (r *Repository) FindStalled(ctx context.Context, sentBefore time.Time, limit int) ([]StalledTask, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.rfq_id, rf.requisition_id, t.supplier_id, s.name, t.category, t.sent_at
		FROM notification_tasks t
		JOIN rfqs rf ON rf.id = t.rfq_id
		JOIN suppliers s ON s.id = t.supplier_id
		WHERE t.status = 'sent'
		  AND t.sent_at <= $1
		  AND NOT t.needs_follow_up
		  AND NOT EXISTS (
			SELECT 1
			FROM quotes q
			JOIN rfq_line_items li ON li.id = q.line_item_id
			WHERE q.rfq_id = t.rfq_id
			  AND q.supplier_id = t.supplier_id
			  AND q.status IN ('submitted', 'awarded', 'rejected')
			  AND (li.category_major || CASE WHEN li.category_minor = '' THEN '' ELSE '/' || li.category_minor END) = t.category
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM supplier_nudges n
			WHERE n.task_id = t.id AND n.status <> 'closed'
		  )
		ORDER BY t.sent_at ASC
		LIMIT $2`,
		sentBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stalled []StalledTask
	for rows.Next() {
		var st StalledTask
		if err := rows.Scan(&st.TaskID, &st.RFQID, &st.RequisitionID, &st.SupplierID,
			&st.SupplierName, &st.Category, &st.SentAt); err != nil {
			return nil, err
		}
		stalled = append(stalled, st)
	}
	return stalled, rows.Err()
}

// Open creates the open nudge for a task. The partial unique index on
// (task_id) WHERE status <> 'closed' makes this race-safe: the loser of a
// concurrent open gets nil back and moves on.
func (r *Repository) Open(ctx context.Context, taskID uuid.UUID) (*Nudge, error) {
	n, err := scanNudge(r.pool.QueryRow(ctx,
		`INSERT INTO supplier_nudges (task_id, max_nudges)
		 VALUES ($1, $2)
		 ON CONFLICT (task_id) WHERE status <> 'closed' DO NOTHING
		 RETURNING `+nudgeColumns,
		taskID, r.maxNudges,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// ListDue returns open nudges whose next reminder is due: never sent, or
// last sent before the interval cutoff, and still under the budget.
func (r *Repository) ListDue(ctx context.Context, lastSentBefore time.Time, limit int) ([]Nudge, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+nudgeColumns+`
		 FROM supplier_nudges
		 WHERE status <> 'closed'
		   AND nudge_count < max_nudges
		   AND (last_nudge_at IS NULL OR last_nudge_at <= $1)
		 ORDER BY created_at ASC
		 LIMIT $2`,
		lastSentBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Nudge
	for rows.Next() {
		n, err := scanNudge(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *n)
	}
	return due, rows.Err()
}

// RecordSent increments the nudge counter after a delivered reminder and
// returns the updated row. The guard on nudge_count keeps a racing scan
// from pushing past the budget.
func (r *Repository) RecordSent(ctx context.Context, id uuid.UUID, message string) (*Nudge, error) {
	n, err := scanNudge(r.pool.QueryRow(ctx,
		`UPDATE supplier_nudges
		 SET nudge_count = nudge_count + 1,
		     status = 'sent',
		     message = $2,
		     last_nudge_at = now(),
		     updated_at = now()
		 WHERE id = $1 AND status <> 'closed' AND nudge_count < max_nudges
		 RETURNING `+nudgeColumns,
		id, message,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// Close moves an open nudge to closed with the given reason. Closing an
// already-closed nudge is a no-op.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE supplier_nudges
		 SET status = 'closed', close_reason = $2, closed_at = now(), updated_at = now()
		 WHERE id = $1 AND status <> 'closed'`,
		id, reason,
	)
	return err
}

// CloseForTask closes the open nudge (if any) on a task. Used by the scan
// when a due nudge's task no longer stalls, so the whole thread on that task
// retires at once. Returns the number of nudges closed.
func (r *Repository) CloseForTask(ctx context.Context, taskID uuid.UUID, reason string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE supplier_nudges
		 SET status = 'closed', close_reason = $2, closed_at = now(), updated_at = now()
		 WHERE task_id = $1 AND status <> 'closed'`,
		taskID, reason,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CloseQuoted closes open nudges whose task's (rfq, supplier, category)
// matches a submitted quote. Used by the QuoteSubmitted handler, which only
// knows the quote's coordinates.
func (r *Repository) CloseQuoted(ctx context.Context, rfqID, supplierID uuid.UUID, category string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE supplier_nudges n
		 SET status = 'closed', close_reason = $4, closed_at = now(), updated_at = now()
		 FROM notification_tasks t
		 WHERE n.task_id = t.id
		   AND n.status <> 'closed'
		   AND t.rfq_id = $1 AND t.supplier_id = $2 AND t.category = $3`,
		rfqID, supplierID, category, CloseReasonQuoteSubmitted,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CloseSatisfied closes every open nudge whose task already has a submitted
// quote for its category. Safety net for QuoteSubmitted events lost to a
// process restart. Returns the number of nudges closed.
func (r *Repository) CloseSatisfied(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE supplier_nudges n
		 SET status = 'closed', close_reason = $1, closed_at = now(), updated_at = now()
		 FROM notification_tasks t
		 WHERE n.task_id = t.id
		   AND n.status <> 'closed'
		   AND EXISTS (
			SELECT 1
			FROM quotes q
			JOIN rfq_line_items li ON li.id = q.line_item_id
			WHERE q.rfq_id = t.rfq_id
			  AND q.supplier_id = t.supplier_id
			  AND q.status IN ('submitted', 'awarded', 'rejected')
			  AND (li.category_major || CASE WHEN li.category_minor = '' THEN '' ELSE '/' || li.category_minor END) = t.category
		  )`,
		CloseReasonQuoteSubmitted,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetByID returns one nudge, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Nudge, error) {
	n, err := scanNudge(r.pool.QueryRow(ctx,
		`SELECT `+nudgeColumns+` FROM supplier_nudges WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// StalledContext loads the reminder context for an existing open nudge.
func (r *Repository) StalledContext(ctx context.Context, nudgeID uuid.UUID) (*StalledTask, error) {
	var st StalledTask
	err := r.pool.QueryRow(ctx, `
		SELECT t.id, t.rfq_id, rf.requisition_id, t.supplier_id, s.name, t.category, t.sent_at
		FROM supplier_nudges n
		JOIN notification_tasks t ON t.id = n.task_id
		JOIN rfqs rf ON rf.id = t.rfq_id
		JOIN suppliers s ON s.id = t.supplier_id
		WHERE n.id = $1`,
		nudgeID,
	).Scan(&st.TaskID, &st.RFQID, &st.RequisitionID, &st.SupplierID,
		&st.SupplierName, &st.Category, &st.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}
