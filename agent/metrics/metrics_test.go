package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordInbound("handled")
	m.RecordInbound("handled")
	m.RecordInbound("dropped")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InboundTotal.WithLabelValues("handled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundTotal.WithLabelValues("dropped")))

	m.RecordOutbound("queued-for-pickup")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboundTotal.WithLabelValues("queued-for-pickup")))

	m.RecordHandler("routing/1.0", 0.01, true)
	m.RecordHandler("routing/1.0", 0.01, false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerErrors.WithLabelValues("routing/1.0")))

	m.SetSessions(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsActive))
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}
