// Package memory keeps locations and queue entries in process memory. It backs
// tests and single-node development runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"service-queue/internal/status"
	"service-queue/models"
)

type Store struct {
	mu        sync.RWMutex
	locations map[string]models.Location
	entries   map[string]models.QueueEntry
}

func NewStore() *Store {
	return &Store{
		locations: make(map[string]models.Location),
		entries:   make(map[string]models.QueueEntry),
	}
}

// CreateLocation inserts or replaces a location record.
func (s *Store) CreateLocation(ctx context.Context, loc models.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.ID] = cloneLocation(loc)
	return nil
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, cloneLocation(loc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return models.Location{}, status.ErrLocationNotFound
	}
	return cloneLocation(loc), nil
}

func (s *Store) UpdateLocation(ctx context.Context, loc models.Location) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.locations[loc.ID]
	if !ok {
		return models.Location{}, status.ErrLocationNotFound
	}
	if current.Version != loc.Version {
		return models.Location{}, status.ErrVersionConflict
	}
	loc.Version++
	s.locations[loc.ID] = cloneLocation(loc)
	return cloneLocation(loc), nil
}

func (s *Store) ListActiveEntries(ctx context.Context, locationID string) ([]models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.QueueEntry
	for _, entry := range s.entries {
		if entry.LocationID == locationID && !entry.State.IsTerminal() {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.QueueEntry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return models.QueueEntry{}, status.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Store) SaveEntry(ctx context.Context, entry models.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry.Position = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func cloneLocation(loc models.Location) models.Location {
	if loc.AverageServiceMinutes != nil {
		avg := *loc.AverageServiceMinutes
		loc.AverageServiceMinutes = &avg
	}
	return loc
}
