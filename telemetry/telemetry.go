package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the polling engine.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with the poll cycle.
type Collector interface {
	IncPollCycle(mode string)
	IncFetch(appliance, outcome string)
	IncTokenRefresh(outcome string)
	SetRemainingMinutes(appliance string, minutes int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncPollCycle(string)             {}
func (noopCollector) IncFetch(string, string)         {}
func (noopCollector) IncTokenRefresh(string)          {}
func (noopCollector) SetRemainingMinutes(string, int) {}

// PrometheusCollector exposes engine counters via Prometheus.
type PrometheusCollector struct {
	pollCycles    *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	remainingGage *prometheus.GaugeVec
}

var (
	pollCycleCounter      *prometheus.CounterVec
	fetchCounter          *prometheus.CounterVec
	tokenRefreshCounter   *prometheus.CounterVec
	remainingMinutesGauge *prometheus.GaugeVec
	collectorsLock        sync.Mutex
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer, reusing metrics that a previous collector already registered.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	collectorsLock.Lock()
	defer collectorsLock.Unlock()

	if pollCycleCounter == nil {
		counter, err := registerCounterVec(reg, prometheus.CounterOpts{
			Name: "stlaundry_poll_cycles_total",
			Help: "Number of completed poll cycles per scheduler mode (on/off/forced).",
		}, []string{"mode"})
		if err != nil {
			return nil, err
		}
		pollCycleCounter = counter
	}
	if fetchCounter == nil {
		counter, err := registerCounterVec(reg, prometheus.CounterOpts{
			Name: "stlaundry_fetch_total",
			Help: "Number of appliance status fetches per appliance and outcome.",
		}, []string{"appliance", "outcome"})
		if err != nil {
			return nil, err
		}
		fetchCounter = counter
	}
	if tokenRefreshCounter == nil {
		counter, err := registerCounterVec(reg, prometheus.CounterOpts{
			Name: "stlaundry_token_refresh_total",
			Help: "Number of OAuth token refresh attempts per outcome.",
		}, []string{"outcome"})
		if err != nil {
			return nil, err
		}
		tokenRefreshCounter = counter
	}
	if remainingMinutesGauge == nil {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stlaundry_remaining_minutes",
			Help: "Last normalized remaining cycle time per appliance in minutes.",
		}, []string{"appliance"})
		if err := reg.Register(gauge); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
					gauge = existing
				} else {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		remainingMinutesGauge = gauge
	}

	return &PrometheusCollector{
		pollCycles:    pollCycleCounter,
		fetches:       fetchCounter,
		tokenRefresh:  tokenRefreshCounter,
		remainingGage: remainingMinutesGauge,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return counter, nil
}

// IncPollCycle increments the counter for the given scheduler mode.
func (p *PrometheusCollector) IncPollCycle(mode string) {
	if p == nil || p.pollCycles == nil {
		return
	}
	p.pollCycles.WithLabelValues(mode).Inc()
}

// IncFetch records one fetch attempt outcome for an appliance.
func (p *PrometheusCollector) IncFetch(appliance, outcome string) {
	if p == nil || p.fetches == nil {
		return
	}
	p.fetches.WithLabelValues(appliance, outcome).Inc()
}

// IncTokenRefresh records one token refresh attempt outcome.
func (p *PrometheusCollector) IncTokenRefresh(outcome string) {
	if p == nil || p.tokenRefresh == nil {
		return
	}
	p.tokenRefresh.WithLabelValues(outcome).Inc()
}

// SetRemainingMinutes updates the remaining-time gauge for an appliance.
func (p *PrometheusCollector) SetRemainingMinutes(appliance string, minutes int) {
	if p == nil || p.remainingGage == nil {
		return
	}
	p.remainingGage.WithLabelValues(appliance).Set(float64(minutes))
}
