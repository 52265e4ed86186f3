package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"service-queue/internal/testfixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAverageCalculator_MeanWithinWindow(t *testing.T) {
	calc := NewAverageCalculator(20)

	assert.InDelta(t, 8.0, calc.Update("loc", 8), 1e-9)
	assert.InDelta(t, 6.0, calc.Update("loc", 4), 1e-9)
	assert.InDelta(t, 7.0, calc.Update("loc", 9), 1e-9)
	assert.Equal(t, []float64{8, 4, 9}, calc.Samples("loc"))
}

func TestAverageCalculator_EvictsOldestBeyondWindow(t *testing.T) {
	calc := NewAverageCalculator(DefaultAverageWindow)

	var got float64
	for i := 1; i <= 25; i++ {
		got = calc.Update("loc", float64(i))
	}

	// window holds 6..25
	assert.InDelta(t, 15.5, got, 1e-9)
	samples := calc.Samples("loc")
	require.Len(t, samples, 20)
	assert.Equal(t, 6.0, samples[0])
	assert.Equal(t, 25.0, samples[19])
}

func TestAverageCalculator_LocationsIndependent(t *testing.T) {
	calc := NewAverageCalculator(3)

	calc.Update("a", 10)
	calc.Update("b", 2)

	assert.InDelta(t, 10.0, calc.Update("a", 10), 1e-9)
	assert.InDelta(t, 3.0, calc.Update("b", 4), 1e-9)
}

func TestAverageCalculator_Reset(t *testing.T) {
	calc := NewAverageCalculator(3)
	calc.Update("loc", 30)

	calc.Reset("loc")

	assert.Nil(t, calc.Samples("loc"))
	assert.InDelta(t, 5.0, calc.Update("loc", 5), 1e-9)
}

func TestAverageCalculator_Seed(t *testing.T) {
	calc := NewAverageCalculator(3)

	assert.True(t, calc.Seed("loc", 12))
	assert.False(t, calc.Seed("loc", 40))
	assert.InDelta(t, 7.0, calc.Update("loc", 2), 1e-9)
	assert.InDelta(t, 6.0, calc.Update("loc", 4), 1e-9)
	// the seeded sample is evicted like any other
	assert.InDelta(t, 4.0, calc.Update("loc", 6), 1e-9)
	assert.Equal(t, []float64{2, 4, 6}, calc.Samples("loc"))

	calc.Update("other", 5)
	assert.False(t, calc.Seed("other", 12))
}

func TestAverageCalculator_ZeroSizeUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultAverageWindow, NewAverageCalculator(0).WindowSize())
}

func TestAverageCalculator_ConcurrentUpdates(t *testing.T) {
	calc := NewAverageCalculator(1000)

	var wg sync.WaitGroup
	for l := 0; l < 4; l++ {
		loc := fmt.Sprintf("loc-%d", l)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				calc.Update(loc, 6)
			}()
		}
	}
	wg.Wait()

	for l := 0; l < 4; l++ {
		assert.Len(t, calc.Samples(fmt.Sprintf("loc-%d", l)), 100)
	}
}

func TestAverageCache_SetGetInvalidate(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	cache := NewAverageCache(clock.Now)

	_, ok := cache.TryGetAverage("loc")
	assert.False(t, ok)

	cache.SetAverage("loc", 12.5)
	avg, ok := cache.TryGetAverage("loc")
	require.True(t, ok)
	assert.Equal(t, 12.5, avg)

	at, ok := cache.ComputedAt("loc")
	require.True(t, ok)
	assert.Equal(t, testfixtures.ReferenceTime(), at)

	clock.Advance(time.Minute)
	cache.SetAverage("loc", 3)
	avg, _ = cache.TryGetAverage("loc")
	assert.Equal(t, 3.0, avg)
	at, _ = cache.ComputedAt("loc")
	assert.Equal(t, testfixtures.ReferenceTime().Add(time.Minute), at)

	cache.Invalidate("loc")
	_, ok = cache.TryGetAverage("loc")
	assert.False(t, ok)
}

func TestAverageCache_Clear(t *testing.T) {
	cache := NewAverageCache(nil)
	cache.SetAverage("a", 1)
	cache.SetAverage("b", 2)

	cache.Clear()

	_, okA := cache.TryGetAverage("a")
	_, okB := cache.TryGetAverage("b")
	assert.False(t, okA)
	assert.False(t, okB)
}
