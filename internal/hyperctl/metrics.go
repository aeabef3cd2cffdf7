package hyperctl

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	completedCycles *prometheus.GaugeVec
	cycleMisses     *prometheus.GaugeVec
	misses          *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		completedCycles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "timpani_node_hyperperiod_completed_cycles",
			Help: "Completed hyperperiod cycles, by workload.",
		}, []string{"workload_id"}),
		cycleMisses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "timpani_node_hyperperiod_cycle_misses",
			Help: "Deadline misses in the most recently completed cycle, by workload.",
		}, []string{"workload_id"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timpani_node_deadline_misses_total",
			Help: "Deadline misses recorded by the hyperperiod supervisor, by workload and task.",
		}, []string{"workload_id", "task_name"}),
	}
	if reg != nil {
		reg.MustRegister(m.completedCycles, m.cycleMisses, m.misses)
	}
	return m
}
