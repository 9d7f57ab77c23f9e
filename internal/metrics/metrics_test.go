package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrdersCreated.WithLabelValues("qr_code").Inc()
	m.OrdersCreated.WithLabelValues("qr_code").Inc()
	m.Transitions.WithLabelValues("pending", "processing").Inc()
	m.CallbackResults.WithLabelValues("qr_code", "completed").Inc()
	m.Dispatches.WithLabelValues("data.exchange", "ok").Inc()
	m.SettleDuration.WithLabelValues("qr_code").Observe(0.05)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersCreated.WithLabelValues("qr_code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbackResults.WithLabelValues("qr_code", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("data.exchange", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
