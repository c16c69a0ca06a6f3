package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncError("device", "malformed")
	m.IncError("device", "malformed")
	m.IncReconnect("system")
	m.SetQueueDepth("device", 3)
	m.ObserveCommit("1", 4)
	m.IncAudit("dropped")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.errors.WithLabelValues("device", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects.WithLabelValues("system")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("device")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("1")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.stagedChanges.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditEvents.WithLabelValues("dropped")))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncError("device", "transport")
		m.SetChannelState("device", 2)
		m.ObserveCommit("1", 1)
		m.IncControl("CO", "sent")
	})
}
