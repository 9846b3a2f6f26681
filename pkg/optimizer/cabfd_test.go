package optimizer

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cirrus/pkg/types"
)

func pod(name string, cpu, ram float64) *types.Pod {
	return &types.Pod{Name: name, Namespace: "default", CPU: cpu, RAM: ram, Phase: types.PodPending}
}

func readyNode(name string, cpu, ram, price float64, pods ...*types.Pod) *types.Node {
	return &types.Node{
		Name:        name,
		MachineType: "existing",
		CPU:         cpu,
		RAM:         ram,
		Price:       price,
		Status:      types.NodeStatusReady,
		Pods:        pods,
	}
}

func gcpCatalog() []types.MachineType {
	return []types.MachineType{
		{Provider: types.ProviderGCP, Name: "e2-standard-2", CPU: 2, RAM: 8, Price: 0.0670},
		{Provider: types.ProviderGCP, Name: "e2-standard-4", CPU: 4, RAM: 16, Price: 0.1340},
		{Provider: types.ProviderGCP, Name: "e2-standard-8", CPU: 8, RAM: 32, Price: 0.2680},
		{Provider: types.ProviderGCP, Name: "e2-highcpu-4", CPU: 4, RAM: 4, Price: 0.0990},
		{Provider: types.ProviderGCP, Name: "e2-highmem-2", CPU: 2, RAM: 16, Price: 0.0904},
	}
}

// assertPlanInvariants checks that every pod is placed at most once and no
// node is overcommitted
func assertPlanInvariants(t *testing.T, plan *types.Plan, pending []*types.Pod) {
	t.Helper()

	seen := make(map[*types.Pod]int)
	for _, n := range plan.Nodes {
		assert.LessOrEqual(t, n.OccupiedCPU(), n.CPU+1e-9, "node %s overcommits CPU", n.Name)
		assert.LessOrEqual(t, n.OccupiedRAM(), n.RAM+1e-9, "node %s overcommits RAM", n.Name)
		assert.GreaterOrEqual(t, n.AvailableCPU(), -1e-9)
		assert.GreaterOrEqual(t, n.AvailableRAM(), -1e-9)
		for _, p := range n.Pods {
			seen[p]++
		}
	}
	for _, p := range plan.Unplaced {
		seen[p]++
	}
	for _, p := range pending {
		assert.LessOrEqual(t, seen[p], 1, "pod %s placed more than once", p.Name)
	}
}

func TestSortPods(t *testing.T) {
	a := pod("a", 2, 4)
	b := pod("b", 1, 4)
	c := pod("c", 8, 1)
	d := pod("d", 1, 4)

	sorted := SortPods([]*types.Pod{c, b, a, d})

	assert.Equal(t, []*types.Pod{a, b, d, c}, sorted)
}

func TestSortPodsDoesNotMutateInput(t *testing.T) {
	in := []*types.Pod{pod("small", 1, 1), pod("big", 1, 8)}
	_ = SortPods(in)
	assert.Equal(t, "small", in[0].Name)
}

func TestOptimizeEmptyCluster85Pods(t *testing.T) {
	var pending []*types.Pod
	groups := []struct {
		count    int
		cpu, ram float64
	}{
		{20, 0.7, 0.2},
		{20, 1, 0.7},
		{40, 0.1, 1},
		{5, 0.2, 0.9},
	}
	for g, grp := range groups {
		for i := 0; i < grp.count; i++ {
			pending = append(pending, pod(fmt.Sprintf("g%d-%d", g, i), grp.cpu, grp.ram))
		}
	}
	require.Len(t, pending, 85)

	plan := Optimize(pending, nil, gcpCatalog())

	require.NotEmpty(t, plan.Nodes)
	assert.Empty(t, plan.Unplaced)
	assert.Equal(t, 85, plan.PodCount())
	assert.Len(t, plan.PlacedPods(), 85)
	assertPlanInvariants(t, plan, pending)

	var expected float64
	for _, n := range plan.Nodes {
		assert.True(t, n.IsNew())
		assert.NotEmpty(t, n.Pods, "new nodes are only created for a pod")
		expected += n.Price
	}
	assert.InDelta(t, expected, plan.TotalPrice(), 1e-9)
	assert.InDelta(t, expected, plan.NewNodesPrice(), 1e-9)
}

func TestOptimizePrefersReadyNodeWhenFitIsEqual(t *testing.T) {
	existing := readyNode("worker-1", 4, 16, 0.20)
	catalog := []types.MachineType{{Provider: types.ProviderGCP, Name: "cheap-4-16", CPU: 4, RAM: 16, Price: 0.10}}
	p := pod("web", 1, 2)

	plan := Optimize([]*types.Pod{p}, []*types.Node{existing}, catalog)

	require.Len(t, plan.Nodes, 1, "no new node is created")
	assert.Equal(t, "worker-1", plan.Nodes[0].Name)
	assert.Equal(t, []*types.Pod{p}, plan.Nodes[0].Pods)
}

func TestOptimizeReusesNodeCreatedEarlierInRun(t *testing.T) {
	catalog := []types.MachineType{
		{Provider: types.ProviderGCP, Name: "small", CPU: 2, RAM: 4, Price: 0.05},
		{Provider: types.ProviderGCP, Name: "large", CPU: 8, RAM: 16, Price: 0.20},
	}
	pending := []*types.Pod{pod("a", 1, 2), pod("b", 1, 2)}

	plan := Optimize(pending, nil, catalog)

	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, "small", plan.Nodes[0].MachineType)
	assert.Len(t, plan.Nodes[0].Pods, 2)
}

func TestOptimizeOversizedPodsAreUnplaced(t *testing.T) {
	huge := pod("huge", 64, 512)
	alsoHuge := pod("also-huge", 1, 1024)
	small := pod("small", 0.5, 1)

	plan := Optimize([]*types.Pod{huge, small, alsoHuge}, nil, gcpCatalog())

	assert.ElementsMatch(t, []*types.Pod{huge, alsoHuge}, plan.Unplaced)
	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, []*types.Pod{small}, plan.Nodes[0].Pods)
	assertPlanInvariants(t, plan, []*types.Pod{huge, small, alsoHuge})
}

func TestOptimizeNoMachineTypes(t *testing.T) {
	existing := readyNode("worker-1", 2, 4, 0)
	fits := pod("fits", 1, 1)
	tooBig := pod("too-big", 4, 1)

	plan := Optimize([]*types.Pod{fits, tooBig}, []*types.Node{existing}, nil)

	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, []*types.Pod{fits}, plan.Nodes[0].Pods)
	assert.Equal(t, []*types.Pod{tooBig}, plan.Unplaced)
}

func TestOptimizeDoesNotMutateCallerNodes(t *testing.T) {
	bound := &types.Pod{Name: "running", Namespace: "default", CPU: 1, RAM: 1, Phase: types.PodRunning, NodeName: "worker-1"}
	existing := readyNode("worker-1", 4, 8, 0.1, bound)
	catalog := gcpCatalog()
	catalogBefore := append([]types.MachineType(nil), catalog...)

	plan := Optimize([]*types.Pod{pod("new", 1, 1)}, []*types.Node{existing}, catalog)

	assert.Len(t, existing.Pods, 1)
	assert.Equal(t, catalogBefore, catalog)
	require.Len(t, plan.Nodes, 1)
	assert.Len(t, plan.Nodes[0].Pods, 2)
	assert.NotSame(t, existing, plan.Nodes[0])
}

func TestOptimizeKeepsIdleReadyNodes(t *testing.T) {
	idle := readyNode("idle", 1, 1, 0.1)
	plan := Optimize([]*types.Pod{pod("big", 2, 8)}, []*types.Node{idle}, gcpCatalog())

	require.Len(t, plan.Nodes, 2)
	assert.Equal(t, "idle", plan.Nodes[0].Name)
	assert.Empty(t, plan.Nodes[0].Pods)
	assert.Zero(t, plan.Nodes[0].OccupiedCPU())
	assert.Zero(t, plan.Nodes[0].OccupiedRAM())
	assert.Len(t, plan.ExistingNodes(), 1)
	assert.Len(t, plan.NewNodes(), 1)
}

func TestOptimizeTieBreaksOnFirstSeen(t *testing.T) {
	catalog := []types.MachineType{
		{Provider: types.ProviderGCP, Name: "b-twin", CPU: 2, RAM: 4, Price: 0.1},
		{Provider: types.ProviderGCP, Name: "a-twin", CPU: 2, RAM: 4, Price: 0.1},
	}

	plan := Optimize([]*types.Pod{pod("p", 1, 1)}, nil, catalog)

	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, "a-twin", plan.Nodes[0].MachineType, "machine types are scanned in name order")
}

func TestOptimizePlaceholderNames(t *testing.T) {
	catalog := []types.MachineType{{Provider: types.ProviderGCP, Name: "tiny", CPU: 1, RAM: 1, Price: 0.01}}
	pending := []*types.Pod{pod("a", 1, 1), pod("b", 1, 1), pod("c", 1, 1)}

	plan := Optimize(pending, nil, catalog)

	var names []string
	for _, n := range plan.Nodes {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"tiny#1", "tiny#2", "tiny#3"}, names)
}

func TestOptimizeIsDeterministic(t *testing.T) {
	var pending []*types.Pod
	for i := 0; i < 30; i++ {
		pending = append(pending, pod(fmt.Sprintf("p%d", i), float64(i%4)*0.5+0.1, float64(i%5)+0.5))
	}
	ready := []*types.Node{readyNode("worker-1", 4, 16, 0.13)}

	layout := func(plan *types.Plan) map[string][]string {
		out := make(map[string][]string)
		for _, n := range plan.Nodes {
			for _, p := range n.Pods {
				out[n.Name] = append(out[n.Name], p.Name)
			}
		}
		return out
	}

	first := layout(Optimize(pending, ready, gcpCatalog()))
	second := layout(Optimize(pending, ready, gcpCatalog()))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("plans differ between runs (-first +second):\n%s", diff)
	}
}

func TestScore(t *testing.T) {
	p := pod("p", 1, 2)

	t.Run("working list node gets full price term", func(t *testing.T) {
		n := readyNode("n", 4, 8, 0.5)
		got := score(candidate{node: n, inWorkingList: true}, p, 1.0, false)
		// cpu: 1-(4-1)/4 = 0.25, ram: 1-(8-2)/8 = 0.25, price: 1
		assert.InDelta(t, 0.25+0.25+0.5, got, 1e-9)
	})

	t.Run("new node price is relative to max", func(t *testing.T) {
		n := types.NewNodeFromMachineType(types.MachineType{Name: "m", CPU: 2, RAM: 4, Price: 0.25})
		got := score(candidate{node: n}, p, 1.0, false)
		// cpu: 1-(2-1)/2 = 0.5, ram: 1-(4-2)/4 = 0.5, price: 1-0.25
		assert.InDelta(t, 0.5+0.5+0.5*0.75, got, 1e-9)
	})

	t.Run("flat prices give full price term", func(t *testing.T) {
		n := types.NewNodeFromMachineType(types.MachineType{Name: "m", CPU: 2, RAM: 4, Price: 0})
		got := score(candidate{node: n}, p, 0, true)
		assert.InDelta(t, 1.5, got, 1e-9)
		assert.False(t, math.IsNaN(got))
	})

	t.Run("zero capacity dimension", func(t *testing.T) {
		n := types.NewNodeFromMachineType(types.MachineType{Name: "m", CPU: 0, RAM: 4})
		got := score(candidate{node: n}, pod("p", 0, 2), 0, true)
		assert.False(t, math.IsNaN(got))
	})
}

func TestPriceRange(t *testing.T) {
	mk := func(prices ...float64) []candidate {
		var out []candidate
		for _, p := range prices {
			out = append(out, candidate{node: &types.Node{Price: p}})
		}
		return out
	}

	maxPrice, flat := priceRange(mk(0.1, 0.3, 0.2))
	assert.Equal(t, 0.3, maxPrice)
	assert.False(t, flat)

	_, flat = priceRange(mk(0, 0))
	assert.True(t, flat)

	_, flat = priceRange(mk(0.2, 0.2))
	assert.True(t, flat)
}
