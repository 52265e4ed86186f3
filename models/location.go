package models

import (
	"time"
)

type Location struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	QueueEnabled          bool      `json:"queue_enabled"`
	MaxCapacity           int       `json:"max_capacity"` // <= 0 means unlimited
	AverageServiceMinutes *float64  `json:"average_service_minutes"`
	LastAverageReset      time.Time `json:"last_average_reset"`
	Version               int64     `json:"version"`
}

// HasCapacity reports whether another active entry fits.
func (l Location) HasCapacity(active int) bool {
	if l.MaxCapacity <= 0 {
		return true
	}
	return active < l.MaxCapacity
}

// ResetDue reports whether the average is older than threshold at now.
func (l Location) ResetDue(now time.Time, threshold time.Duration) bool {
	return now.Sub(l.LastAverageReset) >= threshold
}

type ResetResult struct {
	Success    bool     `json:"success"`
	ResetCount int      `json:"reset_count"`
	Errors     []string `json:"errors"`
}
