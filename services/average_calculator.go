package services

import (
	"sync"

	"github.com/shopspring/decimal"
)

const DefaultAverageWindow = 20

// AverageCalculator keeps, per location, the most recent completed-service
// durations and reports their arithmetic mean. Updates for one location are
// serialized; different locations proceed independently.
type AverageCalculator struct {
	size    int
	mu      sync.Mutex
	windows map[string]*sampleWindow
}

type sampleWindow struct {
	mu      sync.Mutex
	samples []decimal.Decimal
	next    int
	full    bool
}

func NewAverageCalculator(size int) *AverageCalculator {
	if size <= 0 {
		size = DefaultAverageWindow
	}
	return &AverageCalculator{
		size:    size,
		windows: make(map[string]*sampleWindow),
	}
}

func (c *AverageCalculator) WindowSize() int {
	return c.size
}

// Update appends a duration sample, evicting the oldest when the window is
// full, and returns the mean of the window.
func (c *AverageCalculator) Update(locationID string, durationMinutes float64) float64 {
	w := c.window(locationID)

	w.mu.Lock()
	defer w.mu.Unlock()

	sample := decimal.NewFromFloat(durationMinutes)
	if len(w.samples) < c.size {
		w.samples = append(w.samples, sample)
	} else {
		w.samples[w.next] = sample
		w.full = true
	}
	w.next = (w.next + 1) % c.size

	return mean(w.samples)
}

// Seed starts an empty window for locationID with average as its only
// sample, so a restarted process keeps building on the persisted value. It
// does nothing once the location has history.
func (c *AverageCalculator) Seed(locationID string, average float64) bool {
	w := c.window(locationID)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) > 0 {
		return false
	}
	w.samples = append(w.samples, decimal.NewFromFloat(average))
	w.next = 1 % c.size
	return true
}

// Samples returns the window contents, oldest first.
func (c *AverageCalculator) Samples(locationID string) []float64 {
	c.mu.Lock()
	w, ok := c.windows[locationID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float64, 0, len(w.samples))
	start := 0
	if w.full {
		start = w.next
	}
	for i := 0; i < len(w.samples); i++ {
		out = append(out, w.samples[(start+i)%len(w.samples)].InexactFloat64())
	}
	return out
}

// Reset drops the history of a location.
func (c *AverageCalculator) Reset(locationID string) {
	c.mu.Lock()
	delete(c.windows, locationID)
	c.mu.Unlock()
}

func (c *AverageCalculator) window(locationID string) *sampleWindow {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[locationID]
	if !ok {
		w = &sampleWindow{samples: make([]decimal.Decimal, 0, c.size)}
		c.windows[locationID] = w
	}
	return w
}

func mean(samples []decimal.Decimal) float64 {
	if len(samples) == 0 {
		return 0
	}
	return decimal.Avg(samples[0], samples[1:]...).InexactFloat64()
}
