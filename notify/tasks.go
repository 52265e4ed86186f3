package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"service-queue/models"

	"github.com/hibiken/asynq"
)

const TypeNotifyEvent = "notify:event"

// Enqueuer is the part of asynq.Client used to hand events to workers.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func NewNotifyEventTask(env models.EventEnvelope) (*asynq.Task, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotifyEvent, payload), nil
}

// ParseNotifyEventTask decodes the envelope carried by a notify task.
func ParseNotifyEventTask(t *asynq.Task) (models.EventEnvelope, error) {
	var env models.EventEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return models.EventEnvelope{}, fmt.Errorf("decode %s payload: %w", TypeNotifyEvent, err)
	}
	return env, nil
}

// TaskSink defers event delivery to the worker pool. Events that tell a
// customer to come forward go to the critical queue.
type TaskSink struct {
	client   Enqueuer
	maxRetry int
}

func NewTaskSink(client Enqueuer) *TaskSink {
	return &TaskSink{client: client, maxRetry: 3}
}

func (s *TaskSink) Publish(ctx context.Context, event models.Event) error {
	env, err := models.NewEnvelope(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Kind(), err)
	}
	task, err := NewNotifyEventTask(env)
	if err != nil {
		return err
	}

	if _, err := s.client.EnqueueContext(ctx, task, asynq.Queue(queueFor(event.Kind())), asynq.MaxRetry(s.maxRetry)); err != nil {
		return fmt.Errorf("enqueue %s event: %w", event.Kind(), err)
	}
	return nil
}

func queueFor(kind models.EventKind) string {
	switch kind {
	case models.KindEntryCalled, models.KindPositionChanged:
		return "critical"
	case models.KindAverageReset:
		return "low"
	}
	return "default"
}
