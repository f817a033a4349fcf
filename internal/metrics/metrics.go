// Package metrics 暴露扫描与执行流程的 Prometheus 指标：
//
//	skinscan_pricing_requests_total{endpoint,result}
//	skinscan_bind_state{state}                      当前连接状态（对应标签为 1）
//	skinscan_bind_transitions_total{from,to}
//	skinscan_filter_rejections_total{stage}
//	skinscan_candidates_accepted_total{tier}
//	skinscan_scan_runs_total{result}
//	skinscan_signals_total
//	skinscan_execution_outcomes_total{outcome}
//	skinscan_gate_rejections_total{check}
//	skinscan_circuit_trips_total
//	skinscan_invest_runs_total{result}
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/betbot/skinscan/internal/domain"
)

var (
	PricingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_pricing_requests_total",
			Help: "Outbound pricing API requests by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	BindState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skinscan_bind_state",
			Help: "Current pricing API bind state (1 for the active state)",
		},
		[]string{"state"},
	)

	BindTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_bind_transitions_total",
			Help: "Bind state machine transitions",
		},
		[]string{"from", "to"},
	)

	FilterRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_filter_rejections_total",
			Help: "Candidates rejected per filter stage",
		},
		[]string{"stage"},
	)

	CandidatesAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_candidates_accepted_total",
			Help: "Accepted candidates by tier",
		},
		[]string{"tier"},
	)

	ScanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_scan_runs_total",
			Help: "Scan runs by result",
		},
		[]string{"result"},
	)

	Signals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skinscan_signals_total",
			Help: "Signals written to the journal",
		},
	)

	ExecutionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_execution_outcomes_total",
			Help: "Order API responses by classified outcome",
		},
		[]string{"outcome"},
	)

	GateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_gate_rejections_total",
			Help: "Signals discarded by the pre-trade gate",
		},
		[]string{"check"},
	)

	CircuitTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skinscan_circuit_trips_total",
			Help: "Execution runs aborted by the busy circuit breaker",
		},
	)

	InvestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinscan_invest_runs_total",
			Help: "Execution runs by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(PricingRequests, BindState, BindTransitions)
	prometheus.MustRegister(FilterRejections, CandidatesAccepted, ScanRuns)
	prometheus.MustRegister(Signals, ExecutionOutcomes, GateRejections, CircuitTrips, InvestRuns)
}

var bindStates = []domain.BindState{
	domain.BindUnbound, domain.BindBinding, domain.BindBound, domain.BindCooldown, domain.BindInvalid,
}

// ObserveBindTransition 记录状态迁移并刷新状态 gauge
func ObserveBindTransition(from, to domain.BindState) {
	BindTransitions.WithLabelValues(from.String(), to.String()).Inc()
	for _, s := range bindStates {
		v := 0.0
		if s == to {
			v = 1
		}
		BindState.WithLabelValues(s.String()).Set(v)
	}
}
