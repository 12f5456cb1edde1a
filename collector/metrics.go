package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes interceptor and ledger activity to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestsObserved  *prometheus.CounterVec
	RequestsCompleted *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	LedgerEvictions   prometheus.Counter
	DroppedUpdates    prometheus.Counter
	LedgerSize        prometheus.Gauge
}

// NewMetrics creates metrics registered with the default registerer
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics registered with reg
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netinspector_requests_observed_total",
			Help: "Total number of intercepted requests",
		}, []string{"surface"}),
		RequestsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netinspector_requests_completed_total",
			Help: "Intercepted requests that reached a terminal state",
		}, []string{"surface", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netinspector_request_duration_seconds",
			Help:    "Duration from interception to terminal state",
			Buckets: prometheus.DefBuckets,
		}, []string{"surface"}),
		LedgerEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netinspector_ledger_evictions_total",
			Help: "Records evicted from the ledger by capacity",
		}),
		DroppedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netinspector_ledger_dropped_updates_total",
			Help: "Completions for records no longer in the ledger",
		}),
		LedgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netinspector_ledger_size",
			Help: "Number of records in the ledger",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RequestsObserved,
			m.RequestsCompleted,
			m.RequestDuration,
			m.LedgerEvictions,
			m.DroppedUpdates,
			m.LedgerSize,
		)
	}

	return m
}

func (m *Metrics) observed(surface Surface) {
	if m == nil {
		return
	}
	m.RequestsObserved.WithLabelValues(string(surface)).Inc()
}

func (m *Metrics) completed(surface Surface, o outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsCompleted.WithLabelValues(string(surface), o.label()).Inc()
	m.RequestDuration.WithLabelValues(string(surface)).Observe(d.Seconds())
}

func (m *Metrics) evicted() {
	if m == nil {
		return
	}
	m.LedgerEvictions.Inc()
}

func (m *Metrics) droppedUpdate() {
	if m == nil {
		return
	}
	m.DroppedUpdates.Inc()
}

func (m *Metrics) ledgerSize(n int) {
	if m == nil {
		return
	}
	m.LedgerSize.Set(float64(n))
}
