package scheduler

import (
	"context"
	"time"

	"procurement_backend/internal/dispatch"
	"procurement_backend/platform/config"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

// TaskClaimer is the dispatch repository surface the retry loop drives.
type TaskClaimer interface {
	ClaimDue(ctx context.Context, limit int) ([]dispatch.Task, error)
	Release(ctx context.Context, id uuid.UUID, reason string) error
	ReapStuck(ctx context.Context, lease time.Duration) (int, error)
}

// RetryDispatcher is the ticker loop that moves due notification tasks from
// the database into the queue. It also reaps tasks whose worker died while
// holding a claim.
type RetryDispatcher struct {
	repo     TaskClaimer
	enqueuer DeliveryEnqueuer
	log      *logger.Logger
	interval time.Duration
	lease    time.Duration
}

func NewRetryDispatcher(cfg config.OrchestratorConfig, repo TaskClaimer, enqueuer DeliveryEnqueuer, log *logger.Logger) *RetryDispatcher {
	interval := cfg.GetDispatchInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	lease := cfg.GetClaimLease()
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &RetryDispatcher{
		repo:     repo,
		enqueuer: enqueuer,
		log:      log,
		interval: interval,
		lease:    lease,
	}
}

func (d *RetryDispatcher) Run(ctx context.Context) {
	if d == nil || d.repo == nil || d.enqueuer == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.tick(ctx)
	}
}

func (d *RetryDispatcher) tick(ctx context.Context) {
	reaped, err := d.repo.ReapStuck(ctx, d.lease)
	if err != nil {
		d.log.Warn("reap of stuck tasks failed", "error", err)
	} else if reaped > 0 {
		d.log.Warn("stuck tasks returned to pending", "count", reaped)
	}

	claimed, err := d.repo.ClaimDue(ctx, 50)
	if err != nil {
		d.log.Warn("claim of due tasks failed", "error", err)
		return
	}

	for _, task := range claimed {
		payload := NotificationDeliverPayload{
			TaskID: task.ID.String(),
			RFQID:  task.RFQID.String(),
		}
		if err := d.enqueuer.EnqueueDelivery(ctx, payload); err != nil {
			// Put the row back without consuming an attempt; the next tick
			// will claim it again.
			d.log.Warn("enqueue failed, releasing task", "taskId", task.ID, "error", err)
			if relErr := d.repo.Release(ctx, task.ID, "enqueue failed: "+err.Error()); relErr != nil {
				d.log.Error("release after enqueue failure failed", "taskId", task.ID, "error", relErr)
			}
		}
	}
}
