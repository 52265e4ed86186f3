package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"service-queue/internal/status"
	"service-queue/models"
	"service-queue/monitoring"
)

// DefaultResetThreshold is how long a location average lives before the
// reset job clears it.
const DefaultResetThreshold = 90 * 24 * time.Hour

// ResetService clears stale location averages. Cleared averages go back to
// unset so estimates stay empty until fresh completions arrive.
type ResetService struct {
	queue     *QueueService
	threshold time.Duration
	monitor   *monitoring.Monitor
	logger    *slog.Logger
}

func NewResetService(queue *QueueService, threshold time.Duration, monitor *monitoring.Monitor, logger *slog.Logger) *ResetService {
	if threshold <= 0 {
		threshold = DefaultResetThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetService{
		queue:     queue,
		threshold: threshold,
		monitor:   monitor,
		logger:    logger.With("service", "average_reset"),
	}
}

// RunReset sweeps every location once. Failures of single locations are
// collected in the result and never stop the sweep; the job itself never
// returns an error or panics.
func (r *ResetService) RunReset(ctx context.Context) (result models.ResetResult) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("average reset aborted", "panic", rec)
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("reset aborted: %v", rec))
		}
		if !result.Success {
			r.monitor.TrackAverageResetFailure()
		}
		r.monitor.TrackResetRun(time.Since(started))
	}()

	locations, err := r.queue.locations.ListLocations(ctx)
	if err != nil {
		r.logger.Error("failed to list locations", "error", err)
		return models.ResetResult{
			Success: false,
			Errors:  []string{fmt.Sprintf("list locations: %v", err)},
		}
	}

	result.Success = true
	now := r.queue.clock.Now()
	for _, loc := range locations {
		if !loc.ResetDue(now, r.threshold) {
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("location %s: %v", loc.ID, err))
			continue
		}

		reset, err := r.resetLocation(ctx, loc.ID, now)
		if err != nil {
			r.logger.Warn("failed to reset average", "location_id", loc.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("location %s: %v", loc.ID, err))
			continue
		}
		if reset {
			result.ResetCount++
		}
	}

	r.logger.Info("average reset finished",
		"locations", len(locations),
		"reset_count", result.ResetCount,
		"errors", len(result.Errors),
	)
	return result
}

// resetLocation clears one location average under its lock. It reports false
// when a concurrent run already moved the location past the threshold.
func (r *ResetService) resetLocation(ctx context.Context, locationID string, now time.Time) (bool, error) {
	q := r.queue
	unlock, err := q.locks.Lock(ctx, locationID)
	if err != nil {
		return false, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		loc, err := q.locations.GetLocation(ctx, locationID)
		if err != nil {
			return false, err
		}
		if !loc.ResetDue(now, r.threshold) {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		loc.AverageServiceMinutes = nil
		loc.LastAverageReset = now
		if _, err = q.locations.UpdateLocation(ctx, loc); err == nil {
			break
		}
		if !errors.Is(err, status.ErrVersionConflict) || attempt+1 >= maxPersistAttempts {
			return false, err
		}
	}

	q.calculator.Reset(locationID)
	q.persister.Discard(locationID)
	q.cache.Invalidate(locationID)

	r.monitor.TrackAverageReset(locationID)
	r.logger.Info("average reset", "location_id", locationID)
	q.emit(ctx, models.AverageReset{LocationID: locationID, At: now})
	return true, nil
}

// Start runs RunReset every interval until ctx is done. Hosts that schedule
// the reset through the worker package do not need it.
func (r *ResetService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunReset(ctx)
		}
	}
}
