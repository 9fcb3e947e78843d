// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	propertiesProcessedTotal *prometheus.CounterVec
	recordDurationSeconds    prometheus.Histogram
	remainingProperties      prometheus.Gauge
	loopCooldownsTotal       prometheus.Counter
	geocodeAttemptsTotal     *prometheus.CounterVec
	imageFetchesTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		propertiesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotbot_properties_processed_total",
				Help: "Total number of properties processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		recordDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lotbot_record_duration_seconds",
				Help:    "Time spent processing a single property record.",
				Buckets: prometheus.DefBuckets,
			},
		)

		remainingProperties = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lotbot_remaining_properties",
				Help: "Number of properties still eligible for posting.",
			},
		)

		loopCooldownsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lotbot_loop_cooldowns_total",
				Help: "Times the outer loop paused after an unexpected error.",
			},
		)

		geocodeAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotbot_geocode_attempts_total",
				Help: "Total geocoding attempts, labeled by result.",
			},
			[]string{"result"},
		)

		imageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotbot_image_fetches_total",
				Help: "Total imagery requests, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// RecordOutcome counts one processed property by outcome ("posted" or "failed").
func RecordOutcome(outcome string, duration time.Duration) {
	if propertiesProcessedTotal == nil {
		return
	}
	propertiesProcessedTotal.WithLabelValues(outcome).Inc()
	recordDurationSeconds.Observe(duration.Seconds())
}

// SetRemaining records the current remaining-property count.
func SetRemaining(remaining int) {
	if remainingProperties == nil {
		return
	}
	remainingProperties.Set(float64(remaining))
}

// LoopCooldown counts one outer-loop cooldown.
func LoopCooldown() {
	if loopCooldownsTotal == nil {
		return
	}
	loopCooldownsTotal.Inc()
}

// GeocodeAttempt counts one geocoding attempt by result
// ("ok", "timeout", "no_match" or "unavailable").
func GeocodeAttempt(result string) {
	if geocodeAttemptsTotal == nil {
		return
	}
	geocodeAttemptsTotal.WithLabelValues(result).Inc()
}

// ImageFetch counts one imagery request by result
// ("ok", "unavailable" or "storage_error").
func ImageFetch(result string) {
	if imageFetchesTotal == nil {
		return
	}
	imageFetchesTotal.WithLabelValues(result).Inc()
}
