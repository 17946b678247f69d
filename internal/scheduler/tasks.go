// Package scheduler owns the queue plumbing: asynq task definitions, the
// enqueue client, the worker that executes delivery attempts, and the ticker
// loops that feed it.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationDeliver = "dispatch.notification.deliver"

type NotificationDeliverPayload struct {
	TaskID string `json:"taskId"`
	RFQID  string `json:"rfqId"`
}

func NewNotificationDeliverTask(payload NotificationDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDeliver, data), nil
}

func ParseNotificationDeliverPayload(task *asynq.Task) (NotificationDeliverPayload, error) {
	var payload NotificationDeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationDeliverPayload{}, err
	}
	return payload, nil
}
