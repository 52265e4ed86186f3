// Package worker runs the background side of the queue: scheduled average
// resets and deferred event delivery, both as asynq tasks.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"service-queue/models"
	"service-queue/notify"

	"github.com/hibiken/asynq"
)

const (
	TypeResetAverages = "average:reset"

	DefaultResetCron = "0 3 * * *"
)

type ResetAveragesPayload struct {
	TriggeredBy string `json:"triggered_by"`
}

func NewResetAveragesTask(triggeredBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(ResetAveragesPayload{TriggeredBy: triggeredBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeResetAverages, payload, asynq.Queue("low"), asynq.Timeout(5*time.Minute)), nil
}

// Resetter runs one sweep over all locations.
type Resetter interface {
	RunReset(ctx context.Context) models.ResetResult
}

// EnvelopePublisher delivers an already encoded event.
type EnvelopePublisher interface {
	PublishEnvelope(ctx context.Context, env models.EventEnvelope) error
}

type Handlers struct {
	reset    Resetter
	delivery EnvelopePublisher
	logger   *slog.Logger
}

// NewHandlers wires task handlers. delivery may be nil when no realtime
// channel is configured; notify tasks are then dropped with a log line.
func NewHandlers(reset Resetter, delivery EnvelopePublisher, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{reset: reset, delivery: delivery, logger: logger.With("component", "worker")}
}

func (h *Handlers) HandleResetAverages(ctx context.Context, t *asynq.Task) error {
	var payload ResetAveragesPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TypeResetAverages, err, asynq.SkipRetry)
	}

	result := h.reset.RunReset(ctx)
	h.logger.Info("average reset task done",
		"triggered_by", payload.TriggeredBy,
		"success", result.Success,
		"reset_count", result.ResetCount,
		"errors", len(result.Errors),
	)
	if !result.Success {
		return fmt.Errorf("average reset failed: %s", strings.Join(result.Errors, "; "))
	}
	return nil
}

func (h *Handlers) HandleNotifyEvent(ctx context.Context, t *asynq.Task) error {
	env, err := notify.ParseNotifyEventTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if h.delivery == nil {
		h.logger.Debug("no delivery channel, dropping event", "type", env.Type, "location_id", env.LocationID)
		return nil
	}
	return h.delivery.PublishEnvelope(ctx, env)
}

func NewServeMux(h *Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeResetAverages, h.HandleResetAverages)
	mux.HandleFunc(notify.TypeNotifyEvent, h.HandleNotifyEvent)
	return mux
}

func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)
}

// RegisterSchedule adds the periodic average reset to scheduler.
func RegisterSchedule(scheduler *asynq.Scheduler, cronSpec string) (string, error) {
	if cronSpec == "" {
		cronSpec = DefaultResetCron
	}
	task, err := NewResetAveragesTask("scheduler")
	if err != nil {
		return "", err
	}
	entryID, err := scheduler.Register(cronSpec, task)
	if err != nil {
		return "", fmt.Errorf("register %s on %q: %w", TypeResetAverages, cronSpec, err)
	}
	return entryID, nil
}
