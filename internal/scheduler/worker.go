package scheduler

import (
	"context"
	"fmt"

	"procurement_backend/internal/dispatch"
	"procurement_backend/platform/config"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	deliverer *dispatch.Deliverer
	log       *logger.Logger
}

func NewWorker(cfg config.QueueConfig, deliverer *dispatch.Deliverer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetQueueConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		deliverer: deliverer,
		log:       log,
	}

	mux.HandleFunc(TaskNotificationDeliver, w.handleNotificationDeliver)

	return w, nil
}

// handleNotificationDeliver runs one delivery attempt. It never returns an
// error for delivery failures: those are absorbed into the task row's state
// machine, and the retry dispatcher re-enqueues due rows. Returning an error
// here would put asynq's retry loop in competition with ours.
func (w *Worker) handleNotificationDeliver(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNotificationDeliverPayload(task)
	if err != nil {
		return err
	}

	taskID, err := uuid.Parse(payload.TaskID)
	if err != nil {
		return err
	}

	res := w.deliverer.Attempt(ctx, taskID)
	if res.Err != nil {
		w.log.Warn("delivery attempt finished with error",
			"taskId", taskID, "outcome", res.Outcome.String(), "terminal", res.Terminal, "error", res.Err)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("queue worker stopped", "error", err)
	}
}
