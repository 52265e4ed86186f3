// Package redisstore keeps locations and queue entries in Redis as JSON
// documents. Active entries of a location are indexed in a set so the live
// queue can be read without scanning history.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"service-queue/internal/status"
	"service-queue/models"

	"github.com/redis/go-redis/v9"
)

const locationsKey = "locations"

// updateLocationScript replaces a location document only when the stored
// version matches ARGV[1]. Returns -1 when missing, 0 on conflict, 1 on write.
const updateLocationScript = `
local current = redis.call('GET', KEYS[1])
if not current then
	return -1
end
local decoded = cjson.decode(current)
if tonumber(decoded['version']) ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func locationKey(id string) string {
	return fmt.Sprintf("location:%s", id)
}

func entryKey(id string) string {
	return fmt.Sprintf("queue:entry:%s", id)
}

func activeKey(locationID string) string {
	return fmt.Sprintf("queue:active:%s", locationID)
}

// CreateLocation writes a location and registers it for the reset sweep.
func (s *Store) CreateLocation(ctx context.Context, loc models.Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, locationKey(loc.ID), data, 0)
	pipe.SAdd(ctx, locationsKey, loc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create location %s: %w", loc.ID, err)
	}
	return nil
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	ids, err := s.client.SMembers(ctx, locationsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list location ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = locationKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}

	locations := make([]models.Location, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// registered but deleted
			continue
		}
		var loc models.Location
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			return nil, fmt.Errorf("decode location %s: %w", ids[i], err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (models.Location, error) {
	raw, err := s.client.Get(ctx, locationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Location{}, status.ErrLocationNotFound
	}
	if err != nil {
		return models.Location{}, fmt.Errorf("get location %s: %w", id, err)
	}

	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return models.Location{}, fmt.Errorf("decode location %s: %w", id, err)
	}
	return loc, nil
}

func (s *Store) UpdateLocation(ctx context.Context, loc models.Location) (models.Location, error) {
	expected := loc.Version
	loc.Version++
	data, err := json.Marshal(loc)
	if err != nil {
		return models.Location{}, fmt.Errorf("marshal location: %w", err)
	}

	result, err := s.client.Eval(ctx, updateLocationScript, []string{locationKey(loc.ID)}, expected, string(data)).Int64()
	if err != nil {
		return models.Location{}, fmt.Errorf("update location %s: %w", loc.ID, err)
	}
	switch result {
	case -1:
		return models.Location{}, status.ErrLocationNotFound
	case 0:
		return models.Location{}, status.ErrVersionConflict
	}
	return loc, nil
}

func (s *Store) ListActiveEntries(ctx context.Context, locationID string) ([]models.QueueEntry, error) {
	ids, err := s.client.SMembers(ctx, activeKey(locationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entryKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load active entries: %w", err)
	}

	entries := make([]models.QueueEntry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", ids[i], err)
		}
		if entry.State.IsTerminal() {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (models.QueueEntry, error) {
	raw, err := s.client.Get(ctx, entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.QueueEntry{}, status.ErrEntryNotFound
	}
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("get entry %s: %w", id, err)
	}

	var entry models.QueueEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.QueueEntry{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return entry, nil
}

// SaveEntry writes the entry document and its active-set membership in one
// transaction. Terminal entries leave the active set but keep their document.
func (s *Store) SaveEntry(ctx context.Context, entry models.QueueEntry) error {
	entry.Position = 0
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKey(entry.ID), data, 0)
	if entry.State.IsTerminal() {
		pipe.SRem(ctx, activeKey(entry.LocationID), entry.ID)
	} else {
		pipe.SAdd(ctx, activeKey(entry.LocationID), entry.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save entry %s: %w", entry.ID, err)
	}
	return nil
}
