package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func resetCollectors() {
	collectorsLock.Lock()
	pollCycleCounter = nil
	fetchCounter = nil
	tokenRefreshCounter = nil
	remainingMinutesGauge = nil
	collectorsLock.Unlock()
}

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncPollCycle("on")
	collector.IncFetch("washer", "ok")
	collector.IncTokenRefresh("failure")
	collector.SetRemainingMinutes("dryer", 12)
}

func TestPrometheusCollectorRegistersAndReuses(t *testing.T) {
	resetCollectors()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncPollCycle("on")
	collector.IncFetch("washer", "ok")
	collector.IncTokenRefresh("success")
	collector.SetRemainingMinutes("washer", 23)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 4)

	byName := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	requireCounterValue(t, byName["stlaundry_poll_cycles_total"], 1)
	requireCounterValue(t, byName["stlaundry_fetch_total"], 1)
	requireCounterValue(t, byName["stlaundry_token_refresh_total"], 1)

	gauge := byName["stlaundry_remaining_minutes"]
	require.NotNil(t, gauge)
	require.Len(t, gauge.Metric, 1)
	require.Equal(t, float64(23), gauge.Metric[0].Gauge.GetValue())

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.pollCycles, again.pollCycles)

	again.IncPollCycle("on")
	families, err = reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "stlaundry_poll_cycles_total" {
			requireCounterValue(t, mf, 2)
		}
	}
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.NotNil(t, mf)
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
