package services

import (
	"context"
	"time"

	"service-queue/models"
)

// LocationStore is the persisted source of truth for locations. UpdateLocation
// must reject a record whose Version does not match the stored one with
// status.ErrVersionConflict and return the stored record with a bumped version.
type LocationStore interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
	GetLocation(ctx context.Context, id string) (models.Location, error)
	UpdateLocation(ctx context.Context, loc models.Location) (models.Location, error)
}

// EntryStore persists queue entries. ListActiveEntries returns the non-terminal
// entries of a location in no particular order.
type EntryStore interface {
	ListActiveEntries(ctx context.Context, locationID string) ([]models.QueueEntry, error)
	GetEntry(ctx context.Context, id string) (models.QueueEntry, error)
	SaveEntry(ctx context.Context, entry models.QueueEntry) error
}

// EventSink receives transition events for asynchronous delivery.
type EventSink interface {
	Publish(ctx context.Context, event models.Event) error
}

// Limiter throttles an operation per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reports wall-clock time in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

type discardSink struct{}

func (discardSink) Publish(context.Context, models.Event) error { return nil }
