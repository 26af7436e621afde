package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixel_order_operations_total",
			Help: "Order operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	reservedPixels = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pixel_reserved_pixels_total",
			Help: "Pixels moved from free to reserved",
		},
	)

	pixelStates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pixel_pixels",
			Help: "Current pixel count per status, as of the last stats query",
		},
		[]string{"status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixel_operation_duration_seconds",
			Help:    "Duration of core order operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"operation"},
	)
)

// Monitor is a thin handle over the package collectors. A nil *Monitor is
// valid and records nothing.
type Monitor struct{}

func NewMonitor() *Monitor { return &Monitor{} }

// TrackOperation counts one operation outcome and its latency.
func (m *Monitor) TrackOperation(operation, result string, started time.Time) {
	if m == nil {
		return
	}
	orderOperations.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Monitor) TrackReserved(n int) {
	if m == nil {
		return
	}
	reservedPixels.Add(float64(n))
}

func (m *Monitor) SetPixelStates(free, reserved, sold int) {
	if m == nil {
		return
	}
	pixelStates.WithLabelValues("free").Set(float64(free))
	pixelStates.WithLabelValues("reserved").Set(float64(reserved))
	pixelStates.WithLabelValues("sold").Set(float64(sold))
}
