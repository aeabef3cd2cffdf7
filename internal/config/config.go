// Package config loads node and orchestrator configuration (§6) and the
// YAML node inventory, using gopkg.in/yaml.v3 with strict unknown-field
// rejection — "Unknown options abort startup" per §6, enforced as a fatal
// Config-kind error the same way the original's src/config.c calls exit(1).
package config

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/sched"
)

// ClockID selects the clock the node's timers are armed against.
type ClockID int

const (
	ClockWall ClockID = iota
	ClockMonotonic
)

// Node is the node-side configuration of §6.
type Node struct {
	CPUPinning  *int   `yaml:"cpu_pinning"`
	Priority    int    `yaml:"priority"`
	Port        int    `yaml:"port"`
	NodeID      string `yaml:"node_id"`
	LogLevel    string `yaml:"log_level"`
	EnableSync  bool   `yaml:"enable_sync"`
	EnablePlot  bool   `yaml:"enable_plot"`
	ClockIDName string `yaml:"clock_id"`
	ServerHost  string `yaml:"server_host"`
}

// DefaultNode returns the node defaults named in §6.
func DefaultNode() Node {
	return Node{
		Priority:    1,
		Port:        7777,
		NodeID:      "1",
		LogLevel:    "info",
		EnableSync:  false,
		EnablePlot:  false,
		ClockIDName: "wall",
		ServerHost:  "127.0.0.1",
	}
}

// ClockID resolves the configured clock_id string to a ClockID.
func (n Node) ClockID() ClockID {
	if n.ClockIDName == "monotonic" {
		return ClockMonotonic
	}
	return ClockWall
}

// LoadNode parses a node config file (YAML) over the defaults, rejecting
// unknown keys.
func LoadNode(path string) (Node, error) {
	n := DefaultNode()
	if path == "" {
		return n, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Node{}, errs.Wrap(errs.Config, err, "read node config "+path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&n); err != nil {
		return Node{}, errs.Wrap(errs.Config, err, "unknown option in node config "+path)
	}
	if lvl, ok := parseLogLevelOrEmpty(n.LogLevel); !ok {
		return Node{}, errs.New(errs.Config, "unrecognized log_level: "+lvl)
	}
	return n, nil
}

func parseLogLevelOrEmpty(s string) (string, bool) {
	switch s {
	case "", "silent", "error", "warn", "info", "debug", "verbose":
		return s, true
	default:
		return s, false
	}
}

// Orch is the orchestrator-side configuration of §6.
type Orch struct {
	SinfoPort         int    `yaml:"sinfo_port"`
	FaultServiceHost  string `yaml:"fault_service_host"`
	FaultServicePort  int    `yaml:"fault_service_port"`
	DbusPort          int    `yaml:"dbus_port"`
	NodeConfigFile    string `yaml:"node_config_file"`
}

func DefaultOrch() Orch {
	return Orch{
		SinfoPort:        7777,
		FaultServiceHost: "127.0.0.1",
		FaultServicePort: 9000,
		DbusPort:         7778,
	}
}

func LoadOrch(path string) (Orch, error) {
	o := DefaultOrch()
	if path == "" {
		return o, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Orch{}, errs.Wrap(errs.Config, err, "read orchestrator config "+path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return Orch{}, errs.Wrap(errs.Config, err, "unknown option in orchestrator config "+path)
	}
	return o, nil
}

// nodeInventoryEntry is the YAML shape of one node in the inventory file
// (§6): available_cpus, max_memory_mb, architecture, location, description.
type nodeInventoryEntry struct {
	AvailableCPUs []int  `yaml:"available_cpus"`
	MaxMemoryMB   int    `yaml:"max_memory_mb"`
	Architecture  string `yaml:"architecture"`
	Location      string `yaml:"location"`
	Description   string `yaml:"description"`
}

// LoadNodeInventory reads the per-node YAML inventory (§6). An absent
// file yields one default node ("1") with CPUs 0..3 and a 4 GiB ceiling.
func LoadNodeInventory(path string) (map[string]*sched.NodeInventory, error) {
	if path == "" {
		return defaultInventory(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		nlog.Warningf("config: node inventory file %s absent, using default single-node inventory", path)
		return defaultInventory(), nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Config, err, "read node inventory "+path)
	}
	var raw map[string]nodeInventoryEntry
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, errs.Wrap(errs.Config, err, "parse node inventory "+path)
	}
	out := make(map[string]*sched.NodeInventory, len(raw))
	for nodeID, entry := range raw {
		out[nodeID] = &sched.NodeInventory{
			NodeID:        nodeID,
			AvailableCPUs: entry.AvailableCPUs,
			MaxMemoryMB:   entry.MaxMemoryMB,
		}
	}
	return out, nil
}

func defaultInventory() map[string]*sched.NodeInventory {
	return map[string]*sched.NodeInventory{
		"1": {NodeID: "1", AvailableCPUs: []int{0, 1, 2, 3}, MaxMemoryMB: 4096},
	}
}
