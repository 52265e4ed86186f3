package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_length_total",
			Help: "Current number of active entries per location and state",
		},
		[]string{"location_id", "state"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue lifecycle operations",
		},
		[]string{"operation", "status"},
	)

	averageServiceMinutes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "average_service_minutes",
			Help: "Rolling average service duration per location",
		},
		[]string{"location_id"},
	)

	serviceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "service_duration_minutes",
			Help:    "Completed service durations",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
	)

	averageResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "average_resets_total",
			Help: "Locations processed by the average reset job",
		},
		[]string{"result"},
	)

	resetRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "average_reset_run_seconds",
			Help:    "Duration of average reset sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Monitor records engine metrics. A nil *Monitor is a no-op so components can
// run without metrics in tests and tools.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Track queue operations
func (m *Monitor) TrackQueueOperation(operation, status string) {
	if m == nil {
		return
	}
	queueOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) SetQueueLength(locationID string, counts map[string]int) {
	if m == nil {
		return
	}
	for state, n := range counts {
		queueLength.WithLabelValues(locationID, state).Set(float64(n))
	}
}

func (m *Monitor) TrackServiceCompleted(locationID string, durationMinutes, average float64) {
	if m == nil {
		return
	}
	serviceDuration.Observe(durationMinutes)
	averageServiceMinutes.WithLabelValues(locationID).Set(average)
}

func (m *Monitor) TrackAverageReset(locationID string) {
	if m == nil {
		return
	}
	averageResets.WithLabelValues("reset").Inc()
	averageServiceMinutes.DeleteLabelValues(locationID)
}

func (m *Monitor) TrackAverageResetFailure() {
	if m == nil {
		return
	}
	averageResets.WithLabelValues("failed").Inc()
}

func (m *Monitor) TrackResetRun(duration time.Duration) {
	if m == nil {
		return
	}
	resetRunDuration.Observe(duration.Seconds())
}
