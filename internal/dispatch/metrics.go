package dispatch

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the orchestrator's prometheus collectors (§9 AMBIENT
// STACK). Registered once per Dispatcher; safe to register against a
// custom registry in tests.
type metrics struct {
	registrations  prometheus.Counter
	schedInfoCalls *prometheus.CounterVec
	syncCalls      *prometheus.CounterVec
	barrierOpens   prometheus.Counter
	deadlineMisses *prometheus.CounterVec
	faultSinkFails prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timpani_orch_registrations_total",
			Help: "Total Register RPCs accepted by the orchestrator.",
		}),
		schedInfoCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timpani_orch_schedinfo_calls_total",
			Help: "SchedInfo RPCs served, by cache outcome.",
		}, []string{"outcome"}),
		syncCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timpani_orch_sync_calls_total",
			Help: "Sync RPCs served, by barrier outcome (unknown, wait, open).",
		}, []string{"ack"}),
		barrierOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timpani_orch_barrier_opens_total",
			Help: "Times the Sync barrier transitioned to ack=1.",
		}),
		deadlineMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timpani_orch_deadline_misses_total",
			Help: "DMiss RPCs received, by node.",
		}, []string{"node_id"}),
		faultSinkFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timpani_orch_fault_sink_failures_total",
			Help: "NotifyFault calls to the upstream fault service that failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.registrations, m.schedInfoCalls, m.syncCalls, m.barrierOpens, m.deadlineMisses, m.faultSinkFails)
	}
	return m
}
