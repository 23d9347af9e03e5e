package gateway

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report gateway activity.
type Metrics struct {
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	envelopesSent   *prometheus.CounterVec
	sessionDuration prometheus.Histogram
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Collectors are created only once so that
// building several handlers (e.g. in tests) cannot panic on duplicate
// registration.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Pass a fresh registry in tests that need isolated collectors. Registration
// errors panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent_gateway",
			Name:      "sessions_started_total",
			Help:      "Number of streaming sessions accepted.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_gateway",
			Name:      "sessions_ended_total",
			Help:      "Number of sessions ended, by terminal state.",
		}, []string{"state"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agent_gateway",
			Name:      "sessions_active",
			Help:      "Number of currently open streaming sessions.",
		}),
		envelopesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_gateway",
			Name:      "envelopes_sent_total",
			Help:      "Envelopes written to clients, by type.",
		}, []string{"type"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agent_gateway",
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of streaming sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	reg.MustRegister(m.sessionsStarted, m.sessionsEnded, m.sessionsActive, m.envelopesSent, m.sessionDuration)
	return m
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionEnded(state string, start time.Time) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(state).Inc()
	m.sessionsActive.Dec()
	m.sessionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) envelopeSent(envType string) {
	if m == nil {
		return
	}
	m.envelopesSent.WithLabelValues(envType).Inc()
}
