package services

import (
	"context"
	"fmt"

	"service-queue/models"
)

// DisplayService projects a location queue for public kiosks. It never
// mutates state and takes no location lock.
type DisplayService struct {
	queue *QueueService
}

func NewDisplayService(queue *QueueService) *DisplayService {
	return &DisplayService{queue: queue}
}

func (d *DisplayService) BuildDisplay(ctx context.Context, locationIDText string) (models.DisplaySnapshot, error) {
	locationID, err := ParseLocationID(locationIDText)
	if err != nil {
		return models.DisplaySnapshot{}, err
	}

	q := d.queue
	loc, err := q.locations.GetLocation(ctx, locationID)
	if err != nil {
		return models.DisplaySnapshot{}, fmt.Errorf("get location %s: %w", locationID, err)
	}
	active, err := q.entries.ListActiveEntries(ctx, locationID)
	if err != nil {
		return models.DisplaySnapshot{}, fmt.Errorf("list entries for %s: %w", locationID, err)
	}

	sortByJoin(active)
	positions := queuePositions(active)
	average := q.averageFor(loc)

	snapshot := models.DisplaySnapshot{
		LocationID:            locationID,
		QueueEnabled:          loc.QueueEnabled,
		AverageServiceMinutes: average,
		Entries:               make([]models.DisplayEntry, 0, len(active)),
		GeneratedAt:           q.clock.Now(),
	}
	for _, e := range active {
		pos := positions[e.ID]
		snapshot.Entries = append(snapshot.Entries, models.DisplayEntry{
			EntryID:              e.ID,
			TicketCode:           e.TicketCode,
			ServiceTypeID:        e.ServiceTypeID,
			State:                e.State,
			Position:             pos,
			JoinedAt:             e.JoinedAt,
			EstimatedWaitMinutes: estimateWait(pos, average),
		})
	}
	return snapshot, nil
}
