package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    EntryState
		terminal bool
	}{
		{StateWaiting, false},
		{StateCalled, false},
		{StateInService, false},
		{StateCompleted, true},
		{StateCancelled, true},
		{StateNoShow, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(ActionCall, StateWaiting))
	assert.False(t, CanTransition(ActionCall, StateCalled))
	assert.True(t, CanTransition(ActionCheckIn, StateCalled))
	assert.False(t, CanTransition(ActionCheckIn, StateWaiting))
	assert.True(t, CanTransition(ActionComplete, StateInService))
	assert.False(t, CanTransition(ActionComplete, StateCalled))
	assert.True(t, CanTransition(ActionCancel, StateInService))
	assert.False(t, CanTransition(ActionNoShow, StateInService))
	assert.False(t, CanTransition(Action("teleport"), StateWaiting))

	for _, terminal := range []EntryState{StateCompleted, StateCancelled, StateNoShow} {
		for _, action := range []Action{ActionCall, ActionCheckIn, ActionComplete, ActionCancel, ActionNoShow} {
			assert.False(t, CanTransition(action, terminal), "%s from %s", action, terminal)
		}
	}

	target, ok := ActionNoShow.Target()
	require.True(t, ok)
	assert.Equal(t, StateNoShow, target)
}

func TestQueueEntry_JoinedBefore_TieBreaksOnID(t *testing.T) {
	joined := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	a := QueueEntry{ID: "a", JoinedAt: joined}
	b := QueueEntry{ID: "b", JoinedAt: joined}
	c := QueueEntry{ID: "0", JoinedAt: joined.Add(time.Second)}

	assert.True(t, a.JoinedBefore(b))
	assert.False(t, b.JoinedBefore(a))
	assert.True(t, b.JoinedBefore(c))
}

func TestQueueEntry_ServiceMinutes(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 3, 0, 0, time.UTC)
	done := start.Add(8 * time.Minute)
	before := start.Add(-time.Minute)

	entry := QueueEntry{State: StateCompleted, ServiceStartedAt: &start, CompletedAt: &done}
	minutes, ok := entry.ServiceMinutes()
	require.True(t, ok)
	assert.InDelta(t, 8.0, minutes, 1e-9)

	entry.CompletedAt = &before
	_, ok = entry.ServiceMinutes()
	assert.False(t, ok)

	entry.CompletedAt = &done
	entry.State = StateCancelled
	_, ok = entry.ServiceMinutes()
	assert.False(t, ok)
}

func TestLocation_CapacityAndResetDue(t *testing.T) {
	assert.True(t, Location{MaxCapacity: 0}.HasCapacity(1000))
	assert.True(t, Location{MaxCapacity: 3}.HasCapacity(2))
	assert.False(t, Location{MaxCapacity: 3}.HasCapacity(3))

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	threshold := 90 * 24 * time.Hour
	assert.True(t, Location{LastAverageReset: now.Add(-threshold)}.ResetDue(now, threshold))
	assert.False(t, Location{LastAverageReset: now.Add(-threshold + time.Second)}.ResetDue(now, threshold))
	assert.True(t, Location{}.ResetDue(now, threshold))
}

func TestNewEnvelope_CarriesEntryIdentity(t *testing.T) {
	at := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	event := EntryCalled{
		Entry: QueueEntry{ID: "entry-1", LocationID: "loc-1", CustomerID: "cust-1", State: StateCalled},
		At:    at,
	}

	env, err := NewEnvelope(event)
	require.NoError(t, err)
	assert.Equal(t, KindEntryCalled, env.Type)
	assert.Equal(t, "loc-1", env.LocationID)
	assert.Equal(t, "entry-1", env.EntryID)
	assert.Equal(t, "cust-1", env.CustomerID)
	assert.True(t, at.Equal(env.OccurredAt))

	var decoded EntryCalled
	require.NoError(t, json.Unmarshal(env.Data, &decoded))
	assert.Equal(t, "entry-1", decoded.Entry.ID)
}

func TestNewEnvelope_LocationScopedEvent(t *testing.T) {
	env, err := NewEnvelope(QueueToggled{LocationID: "loc-1", Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, KindQueueToggled, env.Type)
	assert.Empty(t, env.EntryID)
	assert.Empty(t, env.CustomerID)
}
