package optimizer

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cuemby/cirrus/pkg/types"
)

// NodeSummary describes one node of a plan
type NodeSummary struct {
	Name           string         `json:"name"`
	MachineType    string         `json:"machine_type"`
	Provider       types.Provider `json:"provider,omitempty"`
	New            bool           `json:"new"`
	Price          float64        `json:"price"`
	CPU            float64        `json:"cpu"`
	RAM            float64        `json:"ram"`
	OccupiedCPU    float64        `json:"occupied_cpu"`
	OccupiedRAM    float64        `json:"occupied_ram"`
	CPUUtilization float64        `json:"cpu_utilization"` // percent
	RAMUtilization float64        `json:"ram_utilization"` // percent
	Pods           int            `json:"pods"`
	PendingPods    int            `json:"pending_pods"` // assigned this cycle, not yet bound
}

// Summary describes a whole plan
type Summary struct {
	Nodes         []NodeSummary `json:"nodes"`
	NewNodes      int           `json:"new_nodes"`
	NewNodesPrice float64       `json:"new_nodes_price"`
	TotalPrice    float64       `json:"total_price"`
	PlacedPods    int           `json:"placed_pods"`
	Unplaced      []string      `json:"unplaced,omitempty"`
}

// Summarize computes per-node utilization and plan totals. Every node's
// price is counted once regardless of how many pods it carries.
func Summarize(plan *types.Plan) Summary {
	s := Summary{
		Nodes:         make([]NodeSummary, 0, len(plan.Nodes)),
		NewNodes:      len(plan.NewNodes()),
		NewNodesPrice: plan.NewNodesPrice(),
		TotalPrice:    plan.TotalPrice(),
		PlacedPods:    len(plan.PlacedPods()),
	}

	for _, n := range plan.Nodes {
		ns := NodeSummary{
			Name:           n.Name,
			MachineType:    n.MachineType,
			Provider:       n.Provider,
			New:            n.IsNew(),
			Price:          n.Price,
			CPU:            n.CPU,
			RAM:            n.RAM,
			OccupiedCPU:    n.OccupiedCPU(),
			OccupiedRAM:    n.OccupiedRAM(),
			CPUUtilization: percent(n.OccupiedCPU(), n.CPU),
			RAMUtilization: percent(n.OccupiedRAM(), n.RAM),
			Pods:           len(n.Pods),
		}
		for _, p := range n.Pods {
			if !p.IsBound() {
				ns.PendingPods++
			}
		}
		s.Nodes = append(s.Nodes, ns)
	}

	for _, p := range plan.Unplaced {
		s.Unplaced = append(s.Unplaced, p.Key())
	}
	return s
}

// LogSummary writes one line per plan node and a totals line
func LogSummary(logger zerolog.Logger, s Summary) {
	for _, n := range s.Nodes {
		event := logger.Info()
		if n.New {
			event = event.Str("action", "create")
		} else {
			event = event.Str("action", "reuse")
		}
		event.
			Str("node", n.Name).
			Str("machine_type", n.MachineType).
			Float64("price", n.Price).
			Float64("cpu", n.CPU).
			Float64("ram", n.RAM).
			Float64("occupied_cpu", n.OccupiedCPU).
			Float64("occupied_ram", n.OccupiedRAM).
			Str("cpu_utilization", formatPercent(n.CPUUtilization)).
			Str("ram_utilization", formatPercent(n.RAMUtilization)).
			Int("pods", n.Pods).
			Int("pending_pods", n.PendingPods).
			Msg("Plan node")
	}

	logger.Info().
		Int("new_nodes", s.NewNodes).
		Float64("new_nodes_price", s.NewNodesPrice).
		Float64("total_price", s.TotalPrice).
		Int("placed_pods", s.PlacedPods).
		Int("unplaced_pods", len(s.Unplaced)).
		Msg("Plan summary")

	for _, key := range s.Unplaced {
		logger.Warn().Str("pod", key).Msg("No node or machine type can hold pod, leaving it pending")
	}
}

func percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * used / total
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}
