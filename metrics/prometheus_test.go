package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.IncCounter(PaymentSubmitted, map[string]string{"network": "sepolia"})
	rec.IncCounter(PaymentSubmitted, map[string]string{"network": "sepolia"})
	rec.IncCounter(PaymentRejected, map[string]string{"network": "sepolia", "reason": "PAYMENT_IN_FLIGHT"})

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.counters.WithLabelValues(PaymentSubmitted, "sepolia", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.counters.WithLabelValues(PaymentRejected, "sepolia", "PAYMENT_IN_FLIGHT")))
}

func TestPrometheusRecorder_Latency(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.ObserveLatency(LatencyConfirm, 1500*time.Millisecond, map[string]string{"network": "base"})

	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram, "scanpay_latency_seconds"))
}

func TestPrometheusRecorder_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err)
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopRecorder{}, OrNoop(nil))
}
