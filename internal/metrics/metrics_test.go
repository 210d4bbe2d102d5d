package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestMetricsRecordsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordPeers(3)
	m.RecordStall()
	m.RecordStall()
	m.RecordRecover()
	m.RecordResendSent()
	m.RecordResendServed()
	m.RecordResendServed()

	require.Equal(t, float64(3), gaugeValue(t, m.peers))
	require.Equal(t, float64(2), counterValue(t, m.stalls))
	require.Equal(t, float64(1), counterValue(t, m.recoveries))
	require.Equal(t, float64(1), counterValue(t, m.resendsSent))
	require.Equal(t, float64(2), counterValue(t, m.resendsServed))
}

func TestNewRegistersCollectorsOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) }, "registering the same metric names twice must be rejected")
}
