package models

import (
	"time"
)

// DisplaySnapshot is the public, read-only view rendered on a location kiosk.
type DisplaySnapshot struct {
	LocationID            string         `json:"location_id"`
	QueueEnabled          bool           `json:"queue_enabled"`
	AverageServiceMinutes *float64       `json:"average_service_minutes"`
	Entries               []DisplayEntry `json:"entries"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

type DisplayEntry struct {
	EntryID              string     `json:"entry_id"`
	TicketCode           string     `json:"ticket_code"`
	ServiceTypeID        *string    `json:"service_type_id,omitempty"`
	State                EntryState `json:"state"`
	Position             int        `json:"position"`
	JoinedAt             time.Time  `json:"joined_at"`
	EstimatedWaitMinutes *float64   `json:"estimated_wait_minutes"`
}

type JoinToken struct {
	Payload   string    `json:"payload"`
	JoinURL   string    `json:"join_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
