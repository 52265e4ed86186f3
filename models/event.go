package models

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	KindEntryCreated    EventKind = "entry_created"
	KindEntryCalled     EventKind = "entry_called"
	KindServiceStarted  EventKind = "service_started"
	KindEntryCompleted  EventKind = "entry_completed"
	KindEntryCancelled  EventKind = "entry_cancelled"
	KindEntryNoShow     EventKind = "entry_no_show"
	KindQueueToggled    EventKind = "queue_toggled"
	KindPositionChanged EventKind = "position_changed"
	KindAverageReset    EventKind = "average_reset"
)

// Event is one of the transition records emitted by the queue engine. The set
// of implementations is closed to this package.
type Event interface {
	Kind() EventKind
	Location() string
	OccurredAt() time.Time
	sealed()
}

type EntryCreated struct {
	Entry    QueueEntry `json:"entry"`
	Position int        `json:"position"`
	At       time.Time  `json:"at"`
}

type EntryCalled struct {
	Entry QueueEntry `json:"entry"`
	At    time.Time  `json:"at"`
}

type ServiceStarted struct {
	Entry QueueEntry `json:"entry"`
	At    time.Time  `json:"at"`
}

type EntryCompleted struct {
	Entry           QueueEntry `json:"entry"`
	DurationMinutes float64    `json:"duration_minutes"`
	AverageMinutes  float64    `json:"average_minutes"`
	At              time.Time  `json:"at"`
}

type EntryCancelled struct {
	Entry QueueEntry `json:"entry"`
	At    time.Time  `json:"at"`
}

type EntryNoShow struct {
	Entry QueueEntry `json:"entry"`
	At    time.Time  `json:"at"`
}

type QueueToggled struct {
	LocationID string    `json:"location_id"`
	Enabled    bool      `json:"enabled"`
	At         time.Time `json:"at"`
}

// PositionChanged is the notification-worthy update sent to a customer whose
// place in line moved.
type PositionChanged struct {
	Entry    QueueEntry `json:"entry"`
	Position int        `json:"position"`
	Message  string     `json:"message"`
	At       time.Time  `json:"at"`
}

type AverageReset struct {
	LocationID string    `json:"location_id"`
	At         time.Time `json:"at"`
}

func (EntryCreated) Kind() EventKind    { return KindEntryCreated }
func (EntryCalled) Kind() EventKind     { return KindEntryCalled }
func (ServiceStarted) Kind() EventKind  { return KindServiceStarted }
func (EntryCompleted) Kind() EventKind  { return KindEntryCompleted }
func (EntryCancelled) Kind() EventKind  { return KindEntryCancelled }
func (EntryNoShow) Kind() EventKind     { return KindEntryNoShow }
func (QueueToggled) Kind() EventKind    { return KindQueueToggled }
func (PositionChanged) Kind() EventKind { return KindPositionChanged }
func (AverageReset) Kind() EventKind    { return KindAverageReset }

func (e EntryCreated) Location() string    { return e.Entry.LocationID }
func (e EntryCalled) Location() string     { return e.Entry.LocationID }
func (e ServiceStarted) Location() string  { return e.Entry.LocationID }
func (e EntryCompleted) Location() string  { return e.Entry.LocationID }
func (e EntryCancelled) Location() string  { return e.Entry.LocationID }
func (e EntryNoShow) Location() string     { return e.Entry.LocationID }
func (e QueueToggled) Location() string    { return e.LocationID }
func (e PositionChanged) Location() string { return e.Entry.LocationID }
func (e AverageReset) Location() string    { return e.LocationID }

func (e EntryCreated) OccurredAt() time.Time    { return e.At }
func (e EntryCalled) OccurredAt() time.Time     { return e.At }
func (e ServiceStarted) OccurredAt() time.Time  { return e.At }
func (e EntryCompleted) OccurredAt() time.Time  { return e.At }
func (e EntryCancelled) OccurredAt() time.Time  { return e.At }
func (e EntryNoShow) OccurredAt() time.Time     { return e.At }
func (e QueueToggled) OccurredAt() time.Time    { return e.At }
func (e PositionChanged) OccurredAt() time.Time { return e.At }
func (e AverageReset) OccurredAt() time.Time    { return e.At }

func (EntryCreated) sealed()    {}
func (EntryCalled) sealed()     {}
func (ServiceStarted) sealed()  {}
func (EntryCompleted) sealed()  {}
func (EntryCancelled) sealed()  {}
func (EntryNoShow) sealed()     {}
func (QueueToggled) sealed()    {}
func (PositionChanged) sealed() {}
func (AverageReset) sealed()    {}

// EventEnvelope is the transport form of an Event.
type EventEnvelope struct {
	Type       EventKind       `json:"type"`
	LocationID string          `json:"location_id"`
	EntryID    string          `json:"entry_id,omitempty"`
	CustomerID string          `json:"customer_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func NewEnvelope(event Event) (EventEnvelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		Type:       event.Kind(),
		LocationID: event.Location(),
		OccurredAt: event.OccurredAt(),
		Data:       data,
	}
	if entry, ok := EntryOf(event); ok {
		env.EntryID = entry.ID
		env.CustomerID = entry.CustomerID
	}
	return env, nil
}

// EntryOf returns the queue entry carried by entry-scoped events.
func EntryOf(event Event) (QueueEntry, bool) {
	switch e := event.(type) {
	case EntryCreated:
		return e.Entry, true
	case EntryCalled:
		return e.Entry, true
	case ServiceStarted:
		return e.Entry, true
	case EntryCompleted:
		return e.Entry, true
	case EntryCancelled:
		return e.Entry, true
	case EntryNoShow:
		return e.Entry, true
	case PositionChanged:
		return e.Entry, true
	}
	return QueueEntry{}, false
}
