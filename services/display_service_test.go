package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"service-queue/internal/status"
	"service-queue/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayService_BuildDisplay_InvalidID(t *testing.T) {
	queue, _, _, _ := setupTestQueueService(t)
	display := NewDisplayService(queue)

	for _, input := range []string{"not-a-valid-id", "", "1234"} {
		_, err := display.BuildDisplay(context.Background(), input)

		var vErr *status.ValidationError
		require.ErrorAs(t, err, &vErr, input)
		assert.Contains(t, vErr.FieldErrors, "location_id")
		assert.Equal(t, "validation", status.Kind(err))
	}
}

func TestDisplayService_BuildDisplay_UnknownLocation(t *testing.T) {
	queue, _, _, _ := setupTestQueueService(t)
	display := NewDisplayService(queue)

	_, err := display.BuildDisplay(context.Background(), "0b6c1a52-7d6e-4f3a-9b0f-2b1f8c3e4d5a")
	assert.ErrorIs(t, err, status.ErrLocationNotFound)
}

func TestDisplayService_BuildDisplay_OrderedWithEstimates(t *testing.T) {
	queue, _, clock, _ := setupTestQueueService(t)
	display := NewDisplayService(queue)
	ctx := context.Background()

	serve(t, queue, clock, "cust-0", 4)

	var ids []string
	for i := 1; i <= 3; i++ {
		entry, err := queue.Join(ctx, testLocationID, fmt.Sprintf("cust-%d", i), nil)
		require.NoError(t, err)
		ids = append(ids, entry.ID)
		clock.Advance(time.Minute)
	}
	_, err := queue.CallNext(ctx, testLocationID)
	require.NoError(t, err)

	snapshot, err := display.BuildDisplay(ctx, strings.ToUpper(testLocationID))
	require.NoError(t, err)

	assert.Equal(t, testLocationID, snapshot.LocationID)
	assert.True(t, snapshot.QueueEnabled)
	require.NotNil(t, snapshot.AverageServiceMinutes)
	assert.InDelta(t, 4.0, *snapshot.AverageServiceMinutes, 1e-9)
	assert.Equal(t, clock.Now(), snapshot.GeneratedAt)

	require.Len(t, snapshot.Entries, 3)
	for i, e := range snapshot.Entries {
		assert.Equal(t, ids[i], e.EntryID)
	}

	called := snapshot.Entries[0]
	assert.Equal(t, models.StateCalled, called.State)
	assert.Equal(t, 0, called.Position)
	require.NotNil(t, called.EstimatedWaitMinutes)
	assert.Zero(t, *called.EstimatedWaitMinutes)

	assert.Equal(t, 1, snapshot.Entries[1].Position)
	assert.InDelta(t, 0.0, *snapshot.Entries[1].EstimatedWaitMinutes, 1e-9)
	assert.Equal(t, 2, snapshot.Entries[2].Position)
	assert.InDelta(t, 4.0, *snapshot.Entries[2].EstimatedWaitMinutes, 1e-9)
}

func TestDisplayService_BuildDisplay_FallsBackToPersistedAverage(t *testing.T) {
	avg := 3.0
	queue, _, _, _ := setupTestQueueService(t, models.Location{
		ID:                    testLocationID,
		QueueEnabled:          false,
		AverageServiceMinutes: &avg,
	})
	display := NewDisplayService(queue)

	snapshot, err := display.BuildDisplay(context.Background(), testLocationID)
	require.NoError(t, err)

	assert.False(t, snapshot.QueueEnabled)
	assert.Empty(t, snapshot.Entries)
	require.NotNil(t, snapshot.AverageServiceMinutes)
	assert.Equal(t, 3.0, *snapshot.AverageServiceMinutes)
}

func TestDisplayService_BuildDisplay_DoesNotMutate(t *testing.T) {
	queue, store, _, sink := setupTestQueueService(t)
	display := NewDisplayService(queue)
	ctx := context.Background()

	entry, err := queue.Join(ctx, testLocationID, "cust-1", nil)
	require.NoError(t, err)
	sink.reset()
	before, err := store.GetLocation(ctx, testLocationID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := display.BuildDisplay(ctx, testLocationID)
		require.NoError(t, err)
	}

	after, err := store.GetLocation(ctx, testLocationID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	stored, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaiting, stored.State)
	assert.Empty(t, sink.kinds())
}
