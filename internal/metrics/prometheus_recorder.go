package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	requests       *prom.CounterVec
	pinVerify      *prom.CounterVec
	blockerLaunch  *prom.CounterVec
	healRepairs    *prom.CounterVec
	blockingActive prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "nightlock",
			Name:      "ipc_requests_total",
			Help:      "IPC requests by type and outcome",
		}, []string{"type", "outcome"}),
		pinVerify: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "nightlock",
			Name:      "pin_verifications_total",
			Help:      "PIN verification attempts by outcome",
		}, []string{"outcome"}),
		blockerLaunch: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "nightlock",
			Name:      "blocker_launches_total",
			Help:      "Blocker launch attempts by tier",
		}, []string{"tier"}),
		healRepairs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "nightlock",
			Name:      "heal_repairs_total",
			Help:      "Self-healing repairs by artifact kind",
		}, []string{"kind"}),
		blockingActive: prom.NewGauge(prom.GaugeOpts{
			Namespace: "nightlock",
			Name:      "blocking_active",
			Help:      "Whether blocking is currently active (1) or not (0)",
		}),
	}
	reg.MustRegister(pr.requests, pr.pinVerify, pr.blockerLaunch, pr.healRepairs, pr.blockingActive)
	return pr
}

func (p *PrometheusRecorder) IncRequest(requestType, outcome string) {
	if p == nil || p.requests == nil {
		return
	}
	p.requests.WithLabelValues(requestType, outcome).Inc()
}

func (p *PrometheusRecorder) IncPinVerify(outcome string) {
	if p == nil || p.pinVerify == nil {
		return
	}
	p.pinVerify.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncBlockerLaunch(tier string) {
	if p == nil || p.blockerLaunch == nil {
		return
	}
	p.blockerLaunch.WithLabelValues(tier).Inc()
}

func (p *PrometheusRecorder) IncHealRepair(kind string) {
	if p == nil || p.healRepairs == nil {
		return
	}
	p.healRepairs.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) SetBlocking(active bool) {
	if p == nil || p.blockingActive == nil {
		return
	}
	if active {
		p.blockingActive.Set(1)
	} else {
		p.blockingActive.Set(0)
	}
}
