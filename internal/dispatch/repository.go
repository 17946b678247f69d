// Package dispatch owns the supplier notification fan-out: one task per
// (rfq, supplier, category), planned idempotently and driven through a
// retrying delivery state machine by queue workers.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Task delivery states. enqueued and delivering are claim states used by the
// queue plumbing; pending, sent, failed and success are the observable ones.
const (
	StatusPending    = "pending"
	StatusEnqueued   = "enqueued"
	StatusDelivering = "delivering"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusSuccess    = "success"
)

// Task is the database model for one supplier notification task.
type Task struct {
	ID               uuid.UUID  `db:"id"`
	RFQID            uuid.UUID  `db:"rfq_id"`
	SupplierID       uuid.UUID  `db:"supplier_id"`
	Category         string     `db:"category"`
	Status           string     `db:"status"`
	AttemptCount     int        `db:"attempt_count"`
	MaxAttempts      int        `db:"max_attempts"`
	LastError        *string    `db:"last_error"`
	ChannelMessageID *string    `db:"channel_message_id"`
	NeedsFollowUp    bool       `db:"needs_follow_up"`
	NextAttemptAt    time.Time  `db:"next_attempt_at"`
	SentAt           *time.Time `db:"sent_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// TaskSeed is one (supplier, category) pair the planner wants a task for.
type TaskSeed struct {
	SupplierID uuid.UUID
	Category   string
}

// QuoteSlotSeed is one (supplier, line item) pair the planner reserves a
// quote placeholder for.
type QuoteSlotSeed struct {
	SupplierID uuid.UUID
	LineItemID uuid.UUID
}

const taskColumns = `id, rfq_id, supplier_id, category, status, attempt_count, max_attempts,
	last_error, channel_message_id, needs_follow_up, next_attempt_at, sent_at, created_at, updated_at`

// Repository provides database operations for notification tasks.
type Repository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewRepository creates a notification task repository. maxAttempts is the
// retry ceiling stamped onto newly planned tasks.
func NewRepository(pool *pgxpool.Pool, maxAttempts int) *Repository {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &Repository{pool: pool, maxAttempts: maxAttempts}
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.RFQID, &t.SupplierID, &t.Category, &t.Status, &t.AttemptCount,
		&t.MaxAttempts, &t.LastError, &t.ChannelMessageID, &t.NeedsFollowUp,
		&t.NextAttemptAt, &t.SentAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID returns one task, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM notification_tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListByRFQ returns all tasks of an RFQ.
func (r *Repository) ListByRFQ(ctx context.Context, rfqID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM notification_tasks WHERE rfq_id = $1 ORDER BY created_at`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// InsertFanOut writes the planner's task set and quote placeholders in one
// transaction. Existing tuples are left untouched, so re-planning an RFQ is
// a no-op for everything already created. Returns the number of tasks created.
func (r *Repository) InsertFanOut(ctx context.Context, rfqID uuid.UUID, tasks []TaskSeed, slots []QuoteSlotSeed) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	created := 0
	for _, seed := range tasks {
		tag, err := tx.Exec(ctx,
			`INSERT INTO notification_tasks (rfq_id, supplier_id, category, max_attempts)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (rfq_id, supplier_id, category) DO NOTHING`,
			rfqID, seed.SupplierID, seed.Category, r.maxAttempts,
		)
		if err != nil {
			return 0, err
		}
		created += int(tag.RowsAffected())
	}

	for _, slot := range slots {
		_, err := tx.Exec(ctx,
			`INSERT INTO quotes (rfq_id, supplier_id, line_item_id)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (supplier_id, rfq_id, line_item_id) DO NOTHING`,
			rfqID, slot.SupplierID, slot.LineItemID,
		)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return created, nil
}

// ClaimDue atomically moves due pending tasks to enqueued and returns them.
// Concurrent dispatchers skip each other's rows via FOR UPDATE SKIP LOCKED.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Task, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM notification_tasks
		WHERE status = 'pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE notification_tasks t
	SET status = 'enqueued', updated_at = now()
	FROM cte
	WHERE t.id = cte.id
	RETURNING `+qualifiedTaskColumns("t"), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claimed, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimForDelivery conditionally transitions enqueued -> delivering. A nil
// task (without error) means another worker already holds this attempt.
func (r *Repository) ClaimForDelivery(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx,
		`UPDATE notification_tasks
		 SET status = 'delivering', updated_at = now()
		 WHERE id = $1 AND status = 'enqueued'
		 RETURNING `+taskColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// Release returns a claimed task to pending without consuming an attempt,
// used when enqueueing to the queue backend fails.
func (r *Repository) Release(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_tasks
		 SET status = 'pending', last_error = $2, updated_at = now()
		 WHERE id = $1 AND status IN ('enqueued', 'delivering')`,
		id, reason,
	)
	return err
}

// ReapStuck returns tasks stuck in a claim state past the lease window to
// pending. Covers workers that died mid-attempt.
func (r *Repository) ReapStuck(ctx context.Context, lease time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification_tasks
		 SET status = 'pending', updated_at = now()
		 WHERE status IN ('enqueued', 'delivering') AND updated_at < now() - $1::interval`,
		lease,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// MarkSent records a successful delivery: stable, non-terminal, awaiting a quote.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, channelMessageID string) error {
	var msgID *string
	if channelMessageID != "" {
		msgID = &channelMessageID
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_tasks
		 SET status = 'sent', sent_at = now(), last_error = NULL, channel_message_id = $2, updated_at = now()
		 WHERE id = $1 AND status = 'delivering'`,
		id, msgID,
	)
	return err
}

// MarkFailed records a terminal failure. attempt_count is left untouched so
// the fatal path is distinguishable from an exhausted retry budget.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_tasks
		 SET status = 'failed', last_error = $2, updated_at = now()
		 WHERE id = $1 AND status = 'delivering'`,
		id, reason,
	)
	return err
}

// RecordAttemptFailure increments the attempt counter after a transient
// delivery failure, scheduling a retry while under the ceiling and going
// terminal failed at it. Returns the resulting status and attempt count.
func (r *Repository) RecordAttemptFailure(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) (status string, attempts int, err error) {
	err = r.pool.QueryRow(ctx,
		`UPDATE notification_tasks
		 SET attempt_count = attempt_count + 1,
		     last_error = $2,
		     status = CASE WHEN attempt_count + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		     next_attempt_at = $3,
		     updated_at = now()
		 WHERE id = $1 AND status = 'delivering'
		 RETURNING status, attempt_count`,
		id, reason, nextAttemptAt,
	).Scan(&status, &attempts)
	return status, attempts, err
}

// HasQuoteSlot reports whether at least one quote placeholder covers the
// task's (rfq, supplier, category).
func (r *Repository) HasQuoteSlot(ctx context.Context, rfqID, supplierID uuid.UUID, category string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1
			FROM quotes q
			JOIN rfq_line_items li ON li.id = q.line_item_id
			WHERE q.rfq_id = $1
			  AND q.supplier_id = $2
			  AND (li.category_major || CASE WHEN li.category_minor = '' THEN '' ELSE '/' || li.category_minor END) = $3
		)`,
		rfqID, supplierID, category,
	).Scan(&exists)
	return exists, err
}

// MarkSuccess finishes the sent task covering a submitted quote.
func (r *Repository) MarkSuccess(ctx context.Context, rfqID, supplierID uuid.UUID, category string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_tasks
		 SET status = 'success', updated_at = now()
		 WHERE rfq_id = $1 AND supplier_id = $2 AND category = $3 AND status = 'sent'`,
		rfqID, supplierID, category,
	)
	return err
}

// FlagFollowUp marks a task for manual follow-up after nudge exhaustion.
// The task stays sent; the supplier did receive the original notification.
func (r *Repository) FlagFollowUp(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_tasks SET needs_follow_up = true, updated_at = now() WHERE id = $1`,
		id,
	)
	return err
}

// ListFollowUps returns tasks flagged for manual follow-up.
func (r *Repository) ListFollowUps(ctx context.Context, limit int) ([]Task, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM notification_tasks
		 WHERE needs_follow_up
		 ORDER BY updated_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func qualifiedTaskColumns(alias string) string {
	return alias + `.id, ` + alias + `.rfq_id, ` + alias + `.supplier_id, ` + alias + `.category, ` +
		alias + `.status, ` + alias + `.attempt_count, ` + alias + `.max_attempts, ` + alias + `.last_error, ` +
		alias + `.channel_message_id, ` + alias + `.needs_follow_up, ` + alias + `.next_attempt_at, ` +
		alias + `.sent_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}
