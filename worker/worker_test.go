package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"service-queue/models"
	"service-queue/notify"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResetter struct {
	result models.ResetResult
	calls  int
}

func (f *fakeResetter) RunReset(ctx context.Context) models.ResetResult {
	f.calls++
	return f.result
}

type fakeDelivery struct {
	envelopes []models.EventEnvelope
	err       error
}

func (f *fakeDelivery) PublishEnvelope(ctx context.Context, env models.EventEnvelope) error {
	f.envelopes = append(f.envelopes, env)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleResetAverages(t *testing.T) {
	reset := &fakeResetter{result: models.ResetResult{Success: true, ResetCount: 2}}
	h := NewHandlers(reset, nil, testLogger())

	task, err := NewResetAveragesTask("test")
	require.NoError(t, err)
	assert.Equal(t, TypeResetAverages, task.Type())

	require.NoError(t, h.HandleResetAverages(context.Background(), task))
	assert.Equal(t, 1, reset.calls)
}

func TestHandleResetAverages_WholesaleFailureRetries(t *testing.T) {
	reset := &fakeResetter{result: models.ResetResult{Success: false, Errors: []string{"list locations: timeout"}}}
	h := NewHandlers(reset, nil, testLogger())

	task, err := NewResetAveragesTask("test")
	require.NoError(t, err)

	err = h.HandleResetAverages(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "list locations")
}

func TestHandleResetAverages_BadPayloadSkipsRetry(t *testing.T) {
	reset := &fakeResetter{}
	h := NewHandlers(reset, nil, testLogger())

	err := h.HandleResetAverages(context.Background(), asynq.NewTask(TypeResetAverages, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, reset.calls)
}

func TestHandleNotifyEvent(t *testing.T) {
	delivery := &fakeDelivery{}
	h := NewHandlers(&fakeResetter{}, delivery, testLogger())

	env := models.EventEnvelope{Type: models.KindEntryCreated, LocationID: "loc-1", EntryID: "e1", Data: json.RawMessage(`{}`)}
	task, err := notify.NewNotifyEventTask(env)
	require.NoError(t, err)

	require.NoError(t, h.HandleNotifyEvent(context.Background(), task))
	require.Len(t, delivery.envelopes, 1)
	assert.Equal(t, "e1", delivery.envelopes[0].EntryID)

	delivery.err = errors.New("pubnub down")
	assert.Error(t, h.HandleNotifyEvent(context.Background(), task))
}

func TestHandleNotifyEvent_WithoutDelivery(t *testing.T) {
	h := NewHandlers(&fakeResetter{}, nil, testLogger())
	task, err := notify.NewNotifyEventTask(models.EventEnvelope{Type: models.KindQueueToggled, LocationID: "loc-1"})
	require.NoError(t, err)

	assert.NoError(t, h.HandleNotifyEvent(context.Background(), task))
	assert.ErrorIs(t, h.HandleNotifyEvent(context.Background(), asynq.NewTask(notify.TypeNotifyEvent, []byte("{"))), asynq.SkipRetry)
}

func TestRegisterSchedule(t *testing.T) {
	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: "localhost:6379"}, nil)

	id, err := RegisterSchedule(scheduler, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = RegisterSchedule(scheduler, "not a cron spec")
	assert.Error(t, err)
}

func TestNewServeMux_RoutesTasks(t *testing.T) {
	reset := &fakeResetter{result: models.ResetResult{Success: true}}
	delivery := &fakeDelivery{}
	mux := NewServeMux(NewHandlers(reset, delivery, testLogger()))

	resetTask, err := NewResetAveragesTask("test")
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), resetTask))
	assert.Equal(t, 1, reset.calls)

	notifyTask, err := notify.NewNotifyEventTask(models.EventEnvelope{Type: models.KindEntryCalled, LocationID: "loc-1"})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), notifyTask))
	assert.Len(t, delivery.envelopes, 1)
}
