package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWindowProcessedCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.WindowProcessed(false, 10.0, 0.001)
	m.WindowProcessed(true, 25.0, 0.002)
	m.WindowProcessed(false, 30.0, 0.001)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.windows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gaps))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.energyJoules))
}

func TestFaultCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EmptyRead()
	m.EmptyRead()
	m.Reconnect()
	m.PersistenceError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.discarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistErrors))
}

func TestSessionResetClearsEnergyGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.WindowProcessed(false, 99.0, 0.001)
	m.SessionReset()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.energyJoules))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.WindowProcessed(true, 1.0, 0.001)
		m.EmptyRead()
		m.Reconnect()
		m.PersistenceError()
		m.SessionReset()
	})
}
