package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	Turns            *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	StorageDegraded  *prometheus.CounterVec
	SafetyFlags      *prometheus.CounterVec
	ProviderLatency  prometheus.Histogram
	SpeechPrefetches *prometheus.CounterVec

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of chat sessions with recent activity.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled chat turns by reply path.",
		}, []string{"path"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		StorageDegraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_degraded_total",
			Help:      "Short-term store operations served by the in-process fallback.",
		}, []string{"op"}),
		SafetyFlags: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_flags_total",
			Help:      "Safety filter hits by stage.",
		}, []string{"stage"}),
		ProviderLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_ms",
			Help:      "Latency of generation provider calls in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		SpeechPrefetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_prefetch_total",
			Help:      "Best-effort speech prefetch outcomes.",
		}, []string{"result"}),
		latency: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveTurn(path string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(path).Inc()
	m.latency.countSource(path)
}

// ObserveStage records how long one stage of a turn took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.observe(stage, float64(d.Microseconds())/1000)
}

// SnapshotLatency summarizes recent stage latencies and reply sources.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}, ReplySources: []ReplySourceCount{}}
	}
	return m.latency.snapshot()
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveProviderLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveStorageDegraded(op string) {
	if m == nil {
		return
	}
	m.StorageDegraded.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveSafetyFlag(stage string) {
	if m == nil {
		return
	}
	m.SafetyFlags.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveSpeechPrefetch(result string) {
	if m == nil {
		return
	}
	m.SpeechPrefetches.WithLabelValues(result).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
