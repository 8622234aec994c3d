package detect

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes pipeline counters. All record methods are nil-safe so
// wiring metrics stays optional in tests and dev tooling.
type Metrics struct {
	sweeps        prometheus.Counter
	keyRuns       *prometheus.CounterVec
	changes       *prometheus.CounterVec
	reconciled    prometheus.Counter
	notifications prometheus.Counter
	runDuration   prometheus.Histogram
}

// NewMetrics registers the pipeline metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		sweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "immigo_detect_sweeps_total",
			Help: "Scheduled sweeps over all tracked policy keys.",
		}),
		keyRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immigo_detect_key_runs_total",
			Help: "Per-key pipeline runs by outcome.",
		}, []string{"outcome"}),
		changes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immigo_detect_changes_total",
			Help: "Detected policy changes by overall severity.",
		}, []string{"severity"}),
		reconciled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "immigo_detect_checklists_reconciled_total",
			Help: "Checklists patched during propagation.",
		}),
		notifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "immigo_detect_notifications_total",
			Help: "Notifications that cleared user preference gates.",
		}),
		runDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "immigo_detect_key_run_duration_seconds",
			Help:    "Wall time of a single per-key pipeline run.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordSweep() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

func (m *Metrics) RecordKeyRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.keyRuns.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordChange(severity string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(severity).Inc()
}

func (m *Metrics) RecordReconciled() {
	if m == nil {
		return
	}
	m.reconciled.Inc()
}

func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}
