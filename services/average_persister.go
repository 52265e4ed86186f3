package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"service-queue/internal/status"
	"service-queue/utils"
)

const maxPersistAttempts = 3

// averagePersister writes computed averages to the location store off the
// request path. Writes for one location are coalesced and applied in order by
// a single goroutine, so the newest value is always the last one written.
type averagePersister struct {
	locations LocationStore
	breaker   *utils.CircuitBreaker
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingAverage
	running map[string]bool
	wg      sync.WaitGroup
}

type pendingAverage struct {
	average    float64
	computedAt time.Time
}

func newAveragePersister(locations LocationStore, timeout time.Duration, logger *slog.Logger) *averagePersister {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &averagePersister{
		locations: locations,
		breaker:   utils.NewCircuitBreaker("location-store"),
		timeout:   timeout,
		logger:    logger,
		pending:   make(map[string]pendingAverage),
		running:   make(map[string]bool),
	}
}

func (p *averagePersister) Schedule(locationID string, average float64, computedAt time.Time) {
	p.mu.Lock()
	p.pending[locationID] = pendingAverage{average: average, computedAt: computedAt}
	if p.running[locationID] {
		p.mu.Unlock()
		return
	}
	p.running[locationID] = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.drain(locationID)
}

// Discard drops a value that has not been picked up yet.
func (p *averagePersister) Discard(locationID string) {
	p.mu.Lock()
	delete(p.pending, locationID)
	p.mu.Unlock()
}

// Wait blocks until every scheduled write has finished.
func (p *averagePersister) Wait() {
	p.wg.Wait()
}

func (p *averagePersister) drain(locationID string) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		next, ok := p.pending[locationID]
		if !ok {
			delete(p.running, locationID)
			p.mu.Unlock()
			return
		}
		delete(p.pending, locationID)
		p.mu.Unlock()

		if err := p.write(locationID, next); err != nil {
			p.logger.Error("failed to persist average",
				"location_id", locationID,
				"average_minutes", next.average,
				"error", err,
			)
		}
	}
}

func (p *averagePersister) write(locationID string, next pendingAverage) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		for attempt := 0; attempt < maxPersistAttempts; attempt++ {
			loc, err := p.locations.GetLocation(ctx, locationID)
			if err != nil {
				return err
			}
			// a reset committed after this value was computed
			if loc.LastAverageReset.After(next.computedAt) {
				return nil
			}

			avg := next.average
			loc.AverageServiceMinutes = &avg
			if _, err = p.locations.UpdateLocation(ctx, loc); err == nil {
				return nil
			} else if !errors.Is(err, status.ErrVersionConflict) {
				return err
			}
		}
		return status.ErrVersionConflict
	})
}
