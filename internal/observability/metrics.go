package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"healthtrend/internal/metric"
)

// Metrics definitions
var (
	RecomputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthtrend_recompute_seconds",
		Help:    "Time spent computing one snapshot.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	RecomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtrend_recomputes_total",
		Help: "Total number of snapshots published.",
	}, []string{"kind"})

	RecomputeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtrend_recompute_failures_total",
		Help: "Total number of recompute passes aborted before publishing.",
	}, []string{"kind"})

	CoalescedTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtrend_coalesced_triggers_total",
		Help: "Total number of input changes folded into an already pending recompute.",
	}, []string{"kind"})

	RefreshErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtrend_refresh_errors_total",
		Help: "Total number of failed sample feed refreshes.",
	}, []string{"kind"})

	SamplesLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "healthtrend_samples_loaded",
		Help: "Number of daily samples held for a metric after the last refresh.",
	}, []string{"kind"})

	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtrend_alerts_sent_total",
		Help: "Total number of adverse-delta alerts dispatched.",
	}, []string{"kind"})
)

// Recorder adapts the package collectors to the pipeline observer contract.
type Recorder struct{}

// ObserveRecompute records one recompute pass.
func (Recorder) ObserveRecompute(kind metric.Kind, elapsed time.Duration, err error) {
	RecomputeDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	if err != nil {
		RecomputeFailuresTotal.WithLabelValues(string(kind)).Inc()
		return
	}
	RecomputesTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveCoalesced records a trigger absorbed by a pending recompute.
func (Recorder) ObserveCoalesced(kind metric.Kind) {
	CoalescedTriggersTotal.WithLabelValues(string(kind)).Inc()
}
