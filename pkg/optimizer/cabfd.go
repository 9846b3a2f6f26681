package optimizer

import (
	"fmt"
	"sort"

	"github.com/cuemby/cirrus/pkg/types"
)

// Score weights. Utilization terms reward tight packing; the price term
// only discriminates between machine types that do not exist yet.
const (
	CPUWeight   = 1.0
	RAMWeight   = 1.0
	PriceWeight = 0.5
)

// candidate is a node a pod may go to. inWorkingList marks capacity that is
// already part of the plan: Ready nodes and new nodes chosen earlier in
// the same run.
type candidate struct {
	node          *types.Node
	inWorkingList bool
}

// Optimize assigns pending pods to the ready nodes or to new nodes of the
// given machine types using cost-aware best-fit decreasing. It never
// mutates ready nodes or the machine type slice; the returned plan holds
// copies of the ready nodes followed by the new nodes in creation order.
func Optimize(pending []*types.Pod, ready []*types.Node, machineTypes []types.MachineType) *types.Plan {
	plan := &types.Plan{Nodes: make([]*types.Node, 0, len(ready))}
	for _, n := range ready {
		plan.Nodes = append(plan.Nodes, n.Clone())
	}

	catalog := append([]types.MachineType(nil), machineTypes...)
	types.SortMachineTypes(catalog)

	created := make(map[string]int)
	for _, pod := range SortPods(pending) {
		candidates := candidatesFor(pod, plan.Nodes, catalog)
		if len(candidates) == 0 {
			plan.Unplaced = append(plan.Unplaced, pod)
			continue
		}

		best := pickBest(candidates, pod)
		best.node.Pods = append(best.node.Pods, pod)
		if !best.inWorkingList {
			created[best.node.MachineType]++
			best.node.Name = fmt.Sprintf("%s#%d", best.node.MachineType, created[best.node.MachineType])
			plan.Nodes = append(plan.Nodes, best.node)
		}
	}
	return plan
}

// SortPods returns a copy of pods ordered by requested RAM, then vCPU, both
// descending. Pods with equal requests keep their input order.
func SortPods(pods []*types.Pod) []*types.Pod {
	sorted := append([]*types.Pod(nil), pods...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RAM != sorted[j].RAM {
			return sorted[i].RAM > sorted[j].RAM
		}
		return sorted[i].CPU > sorted[j].CPU
	})
	return sorted
}

func candidatesFor(pod *types.Pod, working []*types.Node, catalog []types.MachineType) []candidate {
	var out []candidate
	for _, n := range working {
		if n.Fits(pod) {
			out = append(out, candidate{node: n, inWorkingList: true})
		}
	}
	for _, mt := range catalog {
		if mt.CanHold(pod) {
			out = append(out, candidate{node: types.NewNodeFromMachineType(mt)})
		}
	}
	return out
}

// pickBest returns the highest scoring candidate; the first seen wins ties
func pickBest(candidates []candidate, pod *types.Pod) candidate {
	maxPrice, flat := priceRange(candidates)

	best := candidates[0]
	bestScore := score(best, pod, maxPrice, flat)
	for _, c := range candidates[1:] {
		if s := score(c, pod, maxPrice, flat); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

// priceRange returns the highest candidate price and whether the price
// term degenerates (no positive price or all prices equal)
func priceRange(candidates []candidate) (float64, bool) {
	maxPrice := candidates[0].node.Price
	minPrice := maxPrice
	for _, c := range candidates[1:] {
		maxPrice = max(maxPrice, c.node.Price)
		minPrice = min(minPrice, c.node.Price)
	}
	return maxPrice, maxPrice <= 0 || maxPrice == minPrice
}

// score evaluates placing pod on c:
//
//	cpuTerm   = 1 − (availableCPU − pod.CPU) / totalCPU
//	ramTerm   = 1 − (availableRAM − pod.RAM) / totalRAM
//	priceTerm = 1 for working-list nodes, else 1 − price/maxPrice
//	score     = cpuTerm + ramTerm + 0.5·priceTerm
func score(c candidate, pod *types.Pod, maxPrice float64, flat bool) float64 {
	n := c.node
	cpuTerm := utilization(n.AvailableCPU()-pod.CPU, n.CPU)
	ramTerm := utilization(n.AvailableRAM()-pod.RAM, n.RAM)

	priceTerm := 1.0
	if !c.inWorkingList && !flat {
		priceTerm = 1 - n.Price/maxPrice
	}
	return CPUWeight*cpuTerm + RAMWeight*ramTerm + PriceWeight*priceTerm
}

// utilization is the fraction of total left occupied after placement. A
// dimension with no capacity counts as fully used.
func utilization(freeAfter, total float64) float64 {
	if total <= 0 {
		return 1
	}
	return 1 - freeAfter/total
}
