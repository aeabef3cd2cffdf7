// Command ttorch is the orchestrator process of §4.2-§4.4: it computes a
// feasible static schedule for a workload, serves it to connecting nodes
// over the framed RPC bus, runs the Sync start barrier, and fans
// deadline-miss reports out to the upstream fault service.
//
// Ingesting a workload's task definitions is explicitly out of scope
// (§1 Non-goals: "YAML/gRPC ingress of task definitions"); loadWorkload
// below is the minimal glue a runnable binary needs to have something to
// schedule, not a reimplementation of that ingestion layer.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mco-piccolo/timpani/internal/config"
	"github.com/mco-piccolo/timpani/internal/dispatch"
	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/lifecycle"
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/plan"
	"github.com/mco-piccolo/timpani/internal/rpc"
	"github.com/mco-piccolo/timpani/internal/sched"
	"github.com/mco-piccolo/timpani/internal/task"
	"github.com/mco-piccolo/timpani/internal/workload"
)

func main() {
	cfgPath := flag.String("config", "", "orchestrator config file (YAML)")
	workloadPath := flag.String("workload", "", "workload task-definition file (YAML)")
	algName := flag.String("algorithm", string(sched.TargetNodePriority), "scheduling algorithm: target-node-priority, least-loaded, best-fit-decreasing")
	logLevel := flag.String("log-level", "info", "log level: silent, error, warn, info, debug, verbose")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9100", "debug metrics listen address")
	flag.Parse()

	if lvl, ok := nlog.ParseLevel(*logLevel); ok {
		nlog.SetLevel(lvl)
	}

	cfg, err := config.LoadOrch(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ttorch:", err)
		os.Exit(1)
	}

	if err := run(cfg, *workloadPath, sched.Algorithm(*algName), *metricsAddr); err != nil {
		nlog.Errorf("ttorch: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Orch, workloadPath string, alg sched.Algorithm, metricsAddr string) error {
	_, ctx, cancel := lifecycle.InstallSignalHandler()
	defer cancel()

	inventory, err := config.LoadNodeInventory(cfg.NodeConfigFile)
	if err != nil {
		return err
	}

	w, err := loadWorkload(workloadPath)
	if err != nil {
		return err
	}

	result := sched.Schedule(alg, w.Tasks, inventory)
	if len(result.Unscheduled) > 0 {
		nlog.Warningf("ttorch: %d task(s) unscheduled by %s", len(result.Unscheduled), alg)
	}
	placed := applyAssignments(result)
	scheduled := workload.New(w.ID, placed)

	p := plan.New()
	p.Install(scheduled)

	reg := prometheus.NewRegistry()
	sink := dispatch.NewHTTPFaultSink(cfg.FaultServiceHost, cfg.FaultServicePort)
	d := dispatch.New(sink, reg)
	d.InstallPlan(p)

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "timpani_plan_nodes",
		Help: "Number of distinct nodes referenced by the installed plan.",
	}, func() float64 { return float64(len(p.NodeIDs())) }))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			<-gctx.Done()
			srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errs.Wrap(errs.Network, err, "metrics endpoint on "+metricsAddr)
		}
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.SinfoPort)
		server := rpc.NewServer(d)
		return server.Serve(gctx, addr)
	})

	nlog.Infof("ttorch: serving workload %s (%d task(s), hyperperiod=%dus) on port %d",
		scheduled.ID, scheduled.TaskCount(), scheduled.HyperperiodUS, cfg.SinfoPort)

	return g.Wait()
}

// applyAssignments folds a scheduling Result's (node, cpu) placement back
// onto each task's CPUAffinity field, collapsing a multi-CPU "any" mask
// down to the single CPU the packer actually chose (§4.3's output is a
// per-task chosen CPU, not the original affinity hint).
func applyAssignments(result *sched.Result) []*task.Record {
	var out []*task.Record
	for _, assignments := range result.ByNode {
		for _, a := range assignments {
			a.Task.CPUAffinity = 1 << uint(a.CPU)
			out = append(out, a.Task)
		}
	}
	return out
}

// taskSpec is the YAML shape of one task in a workload definition file.
type taskSpec struct {
	Name                     string `yaml:"name"`
	TargetNode               string `yaml:"target_node"`
	PeriodUS                 uint32 `yaml:"period_us"`
	RuntimeUS                uint32 `yaml:"runtime_us"`
	DeadlineUS               uint32 `yaml:"deadline_us"`
	ReleaseOffsetUS          uint32 `yaml:"release_offset_us"`
	Policy                   int32  `yaml:"policy"`
	Priority                 int32  `yaml:"priority"`
	CPU                      *int   `yaml:"cpu"`
	MaxAllowedDeadlineMisses int32  `yaml:"max_allowed_deadline_misses"`
}

type workloadSpec struct {
	ID    string     `yaml:"workload_id"`
	Tasks []taskSpec `yaml:"tasks"`
}

// loadWorkload reads a workload task-definition file. An empty path
// yields a single-task placeholder workload so the binary has something
// to schedule and serve without requiring an external ingestion pipeline
// (out of scope per §1).
func loadWorkload(path string) (*workload.Workload, error) {
	if path == "" {
		return workload.New("default", []*task.Record{{
			Name:           "sample-task",
			AssignedNodeID: "1",
			PeriodUS:       10000,
			RuntimeUS:      2000,
			DeadlineUS:     10000,
			Priority:       50,
			Policy:         task.PolicyFIFO,
		}}), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Config, err, "read workload file "+path)
	}
	var spec workloadSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, errs.Wrap(errs.Config, err, "unknown option in workload file "+path)
	}
	tasks := make([]*task.Record, 0, len(spec.Tasks))
	for _, ts := range spec.Tasks {
		rec := &task.Record{
			Name:                     ts.Name,
			AssignedNodeID:           ts.TargetNode,
			PeriodUS:                 ts.PeriodUS,
			RuntimeUS:                ts.RuntimeUS,
			DeadlineUS:               ts.DeadlineUS,
			ReleaseOffsetUS:          ts.ReleaseOffsetUS,
			Policy:                   task.Policy(ts.Policy),
			Priority:                 ts.Priority,
			MaxAllowedDeadlineMisses: ts.MaxAllowedDeadlineMisses,
		}
		if ts.CPU != nil {
			rec.CPUAffinity = 1 << uint(*ts.CPU)
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		tasks = append(tasks, rec)
	}
	return workload.New(spec.ID, tasks), nil
}
