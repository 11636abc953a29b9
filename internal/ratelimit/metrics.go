package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes controller state as prometheus gauges.
type Metrics struct {
	delay      prometheus.Gauge
	errorGauge prometheus.Gauge
	integral   prometheus.Gauge
	gain       *prometheus.GaugeVec
	usageUsed  prometheus.Gauge
	usageLimit prometheus.Gauge
	fallbacks  prometheus.Counter
}

// NewMetrics creates the controller metrics and registers them on reg.
// A nil reg leaves them unregistered (useful in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		delay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "misthelper_rate_delay_seconds",
			Help: "Delay returned by the last rate computation.",
		}),
		errorGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "misthelper_rate_error_requests",
			Help: "Requests used minus the ideal linear spend for this point in the hour.",
		}),
		integral: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "misthelper_rate_integral",
			Help: "Anti-windup integral term.",
		}),
		gain: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "misthelper_rate_gain",
			Help: "Current controller gains.",
		}, []string{"term"}),
		usageUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "misthelper_api_usage_requests",
			Help: "Requests spent in the current hour (refreshed or extrapolated).",
		}),
		usageLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "misthelper_api_usage_limit",
			Help: "Hourly request limit.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "misthelper_rate_fallbacks_total",
			Help: "Computations that failed and returned the fallback delay.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.delay, m.errorGauge, m.integral, m.gain, m.usageUsed, m.usageLimit, m.fallbacks)
	}
	return m
}

func (m *Metrics) observe(dm DelayMetrics, state *TuningState) {
	if m == nil {
		return
	}
	m.delay.Set(dm.FinalDelay)
	m.errorGauge.Set(dm.Error)
	m.integral.Set(state.Integral)
	m.gain.WithLabelValues("p").Set(state.ProportionalGain)
	m.gain.WithLabelValues("i").Set(state.IntegralGain)
	m.usageUsed.Set(float64(dm.Used))
	m.usageLimit.Set(float64(dm.Limit))
}

func (m *Metrics) fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
