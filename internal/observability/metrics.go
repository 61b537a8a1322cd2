package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the capture engine. All methods are nil-safe so the
// engine runs unchanged when instrumentation is disabled.
type Metrics struct {
	windows       prometheus.Counter
	gaps          prometheus.Counter
	discarded     prometheus.Counter
	reconnects    prometheus.Counter
	persistErrors prometheus.Counter
	energyJoules  prometheus.Gauge
	windowLatency prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		windows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powercap_windows_total",
			Help: "Windows successfully processed.",
		}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powercap_window_gaps_total",
			Help: "Windows flagged with a data gap warning.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powercap_empty_reads_total",
			Help: "Empty device reads discarded without processing.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powercap_reconnects_total",
			Help: "Reconnect cycles entered after a device fault.",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powercap_persistence_errors_total",
			Help: "Window records dropped due to persistence failures.",
		}),
		energyJoules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powercap_session_energy_joules",
			Help: "Cumulative energy of the current session.",
		}),
		windowLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "powercap_window_processing_seconds",
			Help:    "Time from window read completion to fan-out completion.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	reg.MustRegister(
		m.windows, m.gaps, m.discarded, m.reconnects,
		m.persistErrors, m.energyJoules, m.windowLatency,
	)

	return m
}

func (m *Metrics) WindowProcessed(gap bool, cumulativeJoules, latencySeconds float64) {
	if m == nil {
		return
	}
	m.windows.Inc()
	if gap {
		m.gaps.Inc()
	}
	m.energyJoules.Set(cumulativeJoules)
	m.windowLatency.Observe(latencySeconds)
}

func (m *Metrics) EmptyRead() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) PersistenceError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

func (m *Metrics) SessionReset() {
	if m == nil {
		return
	}
	m.energyJoules.Set(0)
}
