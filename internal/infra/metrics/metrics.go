// Package metrics exposes Prometheus collectors for the preview service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	capturesTotal          *prometheus.CounterVec
	captureDurationSeconds *prometheus.HistogramVec
	slotWaitSeconds        prometheus.Histogram
	activeBrowsers         prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_captures_total",
				Help: "Preview requests by outcome (image, static, fallback) and reason.",
			},
			[]string{"outcome", "reason"},
		)

		captureDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "preview_capture_duration_seconds",
				Help:    "Time spent rendering a preview while holding a slot.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		)

		slotWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "preview_slot_wait_seconds",
				Help:    "Time spent waiting for a capture slot.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		)

		activeBrowsers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "preview_active_browsers",
				Help: "Number of captures currently holding a slot.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResult counts one finished preview request.
func ObserveResult(outcome, reason string) {
	Init()
	capturesTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveCapture records how long a render held its slot.
func ObserveCapture(outcome string, d time.Duration) {
	Init()
	captureDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveSlotWait records a slot wait.
func ObserveSlotWait(d time.Duration) {
	Init()
	slotWaitSeconds.Observe(d.Seconds())
}

func IncActiveBrowsers() {
	Init()
	activeBrowsers.Inc()
}

func DecActiveBrowsers() {
	Init()
	activeBrowsers.Dec()
}
