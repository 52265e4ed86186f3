package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"service-queue/internal/status"
	"service-queue/models"
	"service-queue/monitoring"
	"service-queue/utils"

	"github.com/google/uuid"
)

type QueueDeps struct {
	Locations LocationStore
	Entries   EntryStore
	Events    EventSink
	Clock     Clock
	Monitor   *monitoring.Monitor
	Logger    *slog.Logger

	// AverageWindow is the number of recent services averaged per location.
	AverageWindow int
	// PersistTimeout bounds each background write of a location average.
	PersistTimeout time.Duration
}

// QueueService owns queue entries: creation, ordering and every state
// transition. Mutations of one location are serialized through a
// per-location lock; reads go straight to the stores.
type QueueService struct {
	locations  LocationStore
	entries    EntryStore
	events     EventSink
	clock      Clock
	calculator *AverageCalculator
	cache      *AverageCache
	persister  *averagePersister
	locks      *locationLocks
	monitor    *monitoring.Monitor
	logger     *slog.Logger
	newID      func() string
}

func NewQueueService(deps QueueDeps) *QueueService {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.Events == nil {
		deps.Events = discardSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("service", "queue")

	return &QueueService{
		locations:  deps.Locations,
		entries:    deps.Entries,
		events:     deps.Events,
		clock:      deps.Clock,
		calculator: NewAverageCalculator(deps.AverageWindow),
		cache:      NewAverageCache(deps.Clock.Now),
		persister:  newAveragePersister(deps.Locations, deps.PersistTimeout, logger),
		locks:      newLocationLocks(),
		monitor:    deps.Monitor,
		logger:     logger,
		newID:      newEntryID,
	}
}

func (s *QueueService) Cache() *AverageCache {
	return s.cache
}

func (s *QueueService) Calculator() *AverageCalculator {
	return s.calculator
}

// Wait blocks until pending average writes reach the location store.
func (s *QueueService) Wait() {
	s.persister.Wait()
}

// Join appends a customer to the location queue in the waiting state.
func (s *QueueService) Join(ctx context.Context, locationID, customerID string, serviceTypeID *string) (entry models.QueueEntry, err error) {
	defer func() { s.track("join", err) }()

	v := &status.ValidationError{}
	locationID, problem := canonicalLocationID(locationID)
	if problem != "" {
		v.Add("location_id", problem)
	}
	if customerID == "" {
		v.Add("customer_id", "is required")
	}
	if v.HasErrors() {
		return models.QueueEntry{}, v
	}

	unlock, err := s.locks.Lock(ctx, locationID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer unlock()

	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("get location %s: %w", locationID, err)
	}
	if !loc.QueueEnabled {
		return models.QueueEntry{}, status.ErrQueueDisabled
	}

	active, err := s.entries.ListActiveEntries(ctx, locationID)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("list entries for %s: %w", locationID, err)
	}
	for _, existing := range active {
		if existing.CustomerID == customerID {
			return models.QueueEntry{}, status.ErrDuplicateActiveEntry
		}
	}
	if !loc.HasCapacity(len(active)) {
		return models.QueueEntry{}, status.ErrCapacityExceeded
	}

	entry = models.QueueEntry{
		ID:            s.newID(),
		LocationID:    locationID,
		CustomerID:    customerID,
		ServiceTypeID: serviceTypeID,
		TicketCode:    utils.GenerateTicketCode(),
		State:         models.StateWaiting,
		JoinedAt:      s.clock.Now(),
	}

	if err := ctx.Err(); err != nil {
		return models.QueueEntry{}, err
	}
	if err := s.entries.SaveEntry(ctx, entry); err != nil {
		return models.QueueEntry{}, fmt.Errorf("save entry: %w", err)
	}

	entry.Position = queuePositions(append(active, entry))[entry.ID]
	s.logger.Info("customer joined queue",
		"location_id", locationID,
		"entry_id", entry.ID,
		"position", entry.Position,
	)
	s.emit(ctx, models.EntryCreated{Entry: entry, Position: entry.Position, At: entry.JoinedAt})
	return entry, nil
}

// CallNext moves the earliest-joined waiting entry to called.
func (s *QueueService) CallNext(ctx context.Context, locationID string) (entry models.QueueEntry, err error) {
	defer func() { s.track("call_next", err) }()

	unlock, err := s.locks.Lock(ctx, locationID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer unlock()

	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("get location %s: %w", locationID, err)
	}
	if !loc.QueueEnabled {
		return models.QueueEntry{}, status.ErrQueueDisabled
	}

	active, err := s.entries.ListActiveEntries(ctx, locationID)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("list entries for %s: %w", locationID, err)
	}
	sortByJoin(active)

	next := -1
	for i := range active {
		if active[i].State == models.StateWaiting {
			next = i
			break
		}
	}
	if next < 0 {
		return models.QueueEntry{}, status.ErrQueueEmpty
	}

	now := s.clock.Now()
	entry = active[next]
	entry.State = models.StateCalled
	entry.CalledAt = &now

	if err := ctx.Err(); err != nil {
		return models.QueueEntry{}, err
	}
	if err := s.entries.SaveEntry(ctx, entry); err != nil {
		return models.QueueEntry{}, fmt.Errorf("save entry: %w", err)
	}
	active[next] = entry

	s.logger.Info("entry called", "location_id", locationID, "entry_id", entry.ID)

	events := []models.Event{models.EntryCalled{Entry: entry, At: now}}
	positions := queuePositions(active)
	for _, waiting := range active {
		pos := positions[waiting.ID]
		if waiting.State != models.StateWaiting || !shouldNotifyPosition(pos) {
			continue
		}
		waiting.Position = pos
		events = append(events, models.PositionChanged{
			Entry:    waiting,
			Position: pos,
			Message:  positionMessage(pos),
			At:       now,
		})
	}
	s.emit(ctx, events...)
	return entry, nil
}

// CheckIn starts service for a called entry.
func (s *QueueService) CheckIn(ctx context.Context, entryID string) (entry models.QueueEntry, err error) {
	defer func() { s.track("check_in", err) }()

	entry, err = s.transition(ctx, entryID, models.ActionCheckIn, func(e *models.QueueEntry, now time.Time) error {
		e.ServiceStartedAt = &now
		return nil
	}, nil)
	if err != nil {
		return models.QueueEntry{}, err
	}
	s.emit(ctx, models.ServiceStarted{Entry: entry, At: *entry.ServiceStartedAt})
	return entry, nil
}

// Complete ends service for an in-service entry and feeds its duration into
// the location average. completedAt defaults to now.
func (s *QueueService) Complete(ctx context.Context, entryID string, completedAt *time.Time) (entry models.QueueEntry, err error) {
	defer func() { s.track("complete", err) }()

	var duration, average float64
	entry, err = s.transition(ctx, entryID, models.ActionComplete, func(e *models.QueueEntry, now time.Time) error {
		at := now
		if completedAt != nil {
			at = completedAt.UTC()
		}
		if e.ServiceStartedAt == nil || at.Before(*e.ServiceStartedAt) {
			return status.ErrInvalidTimestamp
		}
		e.CompletedAt = &at
		return nil
	}, func(e models.QueueEntry, now time.Time) {
		minutes, ok := e.ServiceMinutes()
		if !ok {
			return
		}
		duration = minutes
		s.seedCalculator(context.WithoutCancel(ctx), e.LocationID)
		average = s.calculator.Update(e.LocationID, minutes)
		s.cache.SetAverage(e.LocationID, average)
		s.persister.Schedule(e.LocationID, average, now)
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	s.monitor.TrackServiceCompleted(entry.LocationID, duration, average)
	s.logger.Info("service completed",
		"location_id", entry.LocationID,
		"entry_id", entry.ID,
		"duration_minutes", duration,
		"average_minutes", average,
	)
	s.emit(ctx, models.EntryCompleted{
		Entry:           entry,
		DurationMinutes: duration,
		AverageMinutes:  average,
		At:              *entry.CompletedAt,
	})
	return entry, nil
}

func (s *QueueService) Cancel(ctx context.Context, entryID string) (entry models.QueueEntry, err error) {
	defer func() { s.track("cancel", err) }()

	entry, err = s.transition(ctx, entryID, models.ActionCancel, nil, nil)
	if err != nil {
		return models.QueueEntry{}, err
	}
	s.emit(ctx, models.EntryCancelled{Entry: entry, At: s.clock.Now()})
	return entry, nil
}

func (s *QueueService) MarkNoShow(ctx context.Context, entryID string) (entry models.QueueEntry, err error) {
	defer func() { s.track("no_show", err) }()

	entry, err = s.transition(ctx, entryID, models.ActionNoShow, nil, nil)
	if err != nil {
		return models.QueueEntry{}, err
	}
	s.emit(ctx, models.EntryNoShow{Entry: entry, At: s.clock.Now()})
	return entry, nil
}

// ToggleQueue sets the queue-enabled flag. Existing entries are untouched.
func (s *QueueService) ToggleQueue(ctx context.Context, locationID string, enabled bool) (loc models.Location, err error) {
	defer func() { s.track("toggle", err) }()

	unlock, err := s.locks.Lock(ctx, locationID)
	if err != nil {
		return models.Location{}, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		loc, err = s.locations.GetLocation(ctx, locationID)
		if err != nil {
			return models.Location{}, fmt.Errorf("get location %s: %w", locationID, err)
		}
		if loc.QueueEnabled == enabled {
			return loc, nil
		}
		if err := ctx.Err(); err != nil {
			return models.Location{}, err
		}

		loc.QueueEnabled = enabled
		loc, err = s.locations.UpdateLocation(ctx, loc)
		if err == nil {
			break
		}
		// the background average writer may have bumped the version
		if !errors.Is(err, status.ErrVersionConflict) || attempt+1 >= maxPersistAttempts {
			return models.Location{}, fmt.Errorf("update location %s: %w", locationID, err)
		}
	}

	s.logger.Info("queue toggled", "location_id", locationID, "enabled", enabled)
	s.emit(ctx, models.QueueToggled{LocationID: locationID, Enabled: enabled, At: s.clock.Now()})
	return loc, nil
}

// Status reports an entry with its live position and wait estimate.
func (s *QueueService) Status(ctx context.Context, entryID string) (models.EntryStatus, error) {
	entry, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return models.EntryStatus{}, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	if entry.State.IsTerminal() {
		return models.EntryStatus{Entry: entry}, nil
	}

	loc, err := s.locations.GetLocation(ctx, entry.LocationID)
	if err != nil {
		return models.EntryStatus{}, fmt.Errorf("get location %s: %w", entry.LocationID, err)
	}
	active, err := s.entries.ListActiveEntries(ctx, entry.LocationID)
	if err != nil {
		return models.EntryStatus{}, fmt.Errorf("list entries for %s: %w", entry.LocationID, err)
	}

	pos := queuePositions(active)[entry.ID]
	entry.Position = pos
	return models.EntryStatus{
		Entry:                entry,
		Position:             pos,
		EstimatedWaitMinutes: estimateWait(pos, s.averageFor(loc)),
	}, nil
}

// Metrics summarizes the live queue of a location.
func (s *QueueService) Metrics(ctx context.Context, locationID string) (models.QueueMetrics, error) {
	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return models.QueueMetrics{}, fmt.Errorf("get location %s: %w", locationID, err)
	}
	active, err := s.entries.ListActiveEntries(ctx, locationID)
	if err != nil {
		return models.QueueMetrics{}, fmt.Errorf("list entries for %s: %w", locationID, err)
	}

	metrics := models.QueueMetrics{
		LocationID:  locationID,
		AvgWaitTime: s.averageFor(loc),
		LastUpdated: s.clock.Now(),
	}
	for _, e := range active {
		switch e.State {
		case models.StateWaiting:
			metrics.Waiting++
		case models.StateCalled:
			metrics.Called++
		case models.StateInService:
			metrics.InService++
		}
	}

	s.monitor.SetQueueLength(locationID, map[string]int{
		string(models.StateWaiting):   metrics.Waiting,
		string(models.StateCalled):    metrics.Called,
		string(models.StateInService): metrics.InService,
	})
	return metrics, nil
}

// transition applies action to an entry under its location lock. mutate may
// fill timestamps or veto the change; committed runs after the entry is saved,
// still under the lock.
func (s *QueueService) transition(
	ctx context.Context,
	entryID string,
	action models.Action,
	mutate func(e *models.QueueEntry, now time.Time) error,
	committed func(e models.QueueEntry, now time.Time),
) (models.QueueEntry, error) {
	peek, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("get entry %s: %w", entryID, err)
	}

	unlock, err := s.locks.Lock(ctx, peek.LocationID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer unlock()

	entry, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	if !models.CanTransition(action, entry.State) {
		return models.QueueEntry{}, fmt.Errorf("%w: %s from %s", status.ErrInvalidTransition, action, entry.State)
	}

	now := s.clock.Now()
	if mutate != nil {
		if err := mutate(&entry, now); err != nil {
			return models.QueueEntry{}, err
		}
	}
	entry.State, _ = action.Target()

	if err := ctx.Err(); err != nil {
		return models.QueueEntry{}, err
	}
	if err := s.entries.SaveEntry(ctx, entry); err != nil {
		return models.QueueEntry{}, fmt.Errorf("save entry: %w", err)
	}
	if committed != nil {
		committed(entry, now)
	}

	s.logger.Debug("entry transitioned",
		"location_id", entry.LocationID,
		"entry_id", entry.ID,
		"action", action,
		"state", entry.State,
	)
	return entry, nil
}

// seedCalculator loads the persisted average into a location window that has
// no samples yet. Called under the location lock.
func (s *QueueService) seedCalculator(ctx context.Context, locationID string) {
	if len(s.calculator.Samples(locationID)) > 0 {
		return
	}
	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		s.logger.Warn("could not load persisted average", "location_id", locationID, "error", err)
		return
	}
	if loc.AverageServiceMinutes != nil && s.calculator.Seed(locationID, *loc.AverageServiceMinutes) {
		s.logger.Debug("average window seeded from store",
			"location_id", locationID,
			"average_minutes", *loc.AverageServiceMinutes,
		)
	}
}

// averageFor returns the cached average, falling back to the persisted one.
func (s *QueueService) averageFor(loc models.Location) *float64 {
	if avg, ok := s.cache.TryGetAverage(loc.ID); ok {
		return &avg
	}
	if loc.AverageServiceMinutes != nil {
		avg := *loc.AverageServiceMinutes
		return &avg
	}
	return nil
}

func (s *QueueService) emit(ctx context.Context, events ...models.Event) {
	// the transition is already committed; delivery must not depend on the caller
	ctx = context.WithoutCancel(ctx)
	for _, event := range events {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish event",
				"type", event.Kind(),
				"location_id", event.Location(),
				"error", err,
			)
		}
	}
}

func (s *QueueService) track(operation string, err error) {
	s.monitor.TrackQueueOperation(operation, status.Kind(err))
	if err != nil && status.Kind(err) == "unexpected" {
		s.logger.Error("queue operation failed", "operation", operation, "error", err)
	}
}

// queuePositions numbers waiting entries by join order starting at 1. Called
// and in-service entries are at the desk and get position 0.
func queuePositions(entries []models.QueueEntry) map[string]int {
	ordered := make([]models.QueueEntry, len(entries))
	copy(ordered, entries)
	sortByJoin(ordered)

	positions := make(map[string]int, len(ordered))
	next := 1
	for _, e := range ordered {
		if e.State == models.StateWaiting {
			positions[e.ID] = next
			next++
		} else {
			positions[e.ID] = 0
		}
	}
	return positions
}

func sortByJoin(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].JoinedBefore(entries[j])
	})
}

// estimateWait is (position-1) x average; nil while no average is known.
func estimateWait(position int, average *float64) *float64 {
	if average == nil {
		return nil
	}
	wait := 0.0
	if position > 1 {
		wait = float64(position-1) * *average
	}
	return &wait
}

func shouldNotifyPosition(position int) bool {
	// Notify more frequently for customers closer to the front
	if position <= 0 {
		return false
	} else if position <= 5 {
		return true
	} else if position <= 20 {
		return position%2 == 0
	} else if position <= 100 {
		return position%10 == 0
	}
	return position%50 == 0
}

func positionMessage(position int) string {
	if position == 1 {
		return "You're next!"
	} else if position <= 5 {
		return fmt.Sprintf("Almost there! You're #%d", position)
	}
	return fmt.Sprintf("You are #%d in line", position)
}

func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
