package services

import (
	"sync"
	"time"
)

// AverageCache holds the last known average per location. A miss tells the
// caller to fall back to the persisted location record.
type AverageCache struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]averageCacheEntry
}

type averageCacheEntry struct {
	average    float64
	computedAt time.Time
}

func NewAverageCache(now func() time.Time) *AverageCache {
	if now == nil {
		now = time.Now
	}
	return &AverageCache{
		now:     now,
		entries: make(map[string]averageCacheEntry),
	}
}

func (c *AverageCache) SetAverage(locationID string, averageMinutes float64) {
	c.mu.Lock()
	c.entries[locationID] = averageCacheEntry{average: averageMinutes, computedAt: c.now()}
	c.mu.Unlock()
}

func (c *AverageCache) TryGetAverage(locationID string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[locationID]
	c.mu.RUnlock()
	return entry.average, ok
}

// ComputedAt reports when the cached average of a location was stored.
func (c *AverageCache) ComputedAt(locationID string) (time.Time, bool) {
	c.mu.RLock()
	entry, ok := c.entries[locationID]
	c.mu.RUnlock()
	return entry.computedAt, ok
}

func (c *AverageCache) Invalidate(locationID string) {
	c.mu.Lock()
	delete(c.entries, locationID)
	c.mu.Unlock()
}

func (c *AverageCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]averageCacheEntry)
	c.mu.Unlock()
}
