package models

import (
	"time"
)

type EntryState string

const (
	StateWaiting   EntryState = "waiting"
	StateCalled    EntryState = "called"
	StateInService EntryState = "in_service"
	StateCompleted EntryState = "completed"
	StateCancelled EntryState = "cancelled"
	StateNoShow    EntryState = "no_show"
)

// IsTerminal reports whether no further transition is possible.
func (s EntryState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateNoShow:
		return true
	}
	return false
}

type QueueEntry struct {
	ID               string     `json:"id"`
	LocationID       string     `json:"location_id"`
	CustomerID       string     `json:"customer_id"`
	ServiceTypeID    *string    `json:"service_type_id,omitempty"`
	TicketCode       string     `json:"ticket_code"`
	State            EntryState `json:"state"`
	JoinedAt         time.Time  `json:"joined_at"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	ServiceStartedAt *time.Time `json:"service_started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Position         int        `json:"position,omitempty"` // derived on read, never stored
}

// JoinedBefore orders entries by join time, breaking ties by identifier.
func (e QueueEntry) JoinedBefore(other QueueEntry) bool {
	if !e.JoinedAt.Equal(other.JoinedAt) {
		return e.JoinedAt.Before(other.JoinedAt)
	}
	return e.ID < other.ID
}

// ServiceMinutes returns the completed service duration in minutes. ok is false
// unless the entry is completed with serviceStart <= completion.
func (e QueueEntry) ServiceMinutes() (minutes float64, ok bool) {
	if e.State != StateCompleted || e.ServiceStartedAt == nil || e.CompletedAt == nil {
		return 0, false
	}
	if e.CompletedAt.Before(*e.ServiceStartedAt) {
		return 0, false
	}
	return e.CompletedAt.Sub(*e.ServiceStartedAt).Minutes(), true
}

type EntryStatus struct {
	Entry                QueueEntry `json:"entry"`
	Position             int        `json:"position"`
	EstimatedWaitMinutes *float64   `json:"estimated_wait_minutes"`
}

type QueueMetrics struct {
	LocationID  string    `json:"location_id"`
	Waiting     int       `json:"waiting"`
	Called      int       `json:"called"`
	InService   int       `json:"in_service"`
	AvgWaitTime *float64  `json:"avg_wait_time"`
	LastUpdated time.Time `json:"last_updated"`
}
