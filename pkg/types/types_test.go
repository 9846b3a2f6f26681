package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pod(name string, cpu, ram float64) *Pod {
	return &Pod{Name: name, Namespace: "default", CPU: cpu, RAM: ram, Phase: PodPending, SchedulerName: "cirrus"}
}

func TestMachineTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mt      MachineType
		wantErr bool
	}{
		{"valid", MachineType{Name: "e2-small", CPU: 2, RAM: 2, Price: 0.02}, false},
		{"free tier", MachineType{Name: "f1-micro", CPU: 0.2, RAM: 0.6}, false},
		{"missing name", MachineType{CPU: 1, RAM: 1}, true},
		{"negative cpu", MachineType{Name: "x", CPU: -1, RAM: 1}, true},
		{"negative price", MachineType{Name: "x", CPU: 1, RAM: 1, Price: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mt.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNodeCapacity(t *testing.T) {
	n := NewNodeFromMachineType(MachineType{Provider: ProviderGCP, Name: "e2-standard-4", CPU: 4, RAM: 16, Price: 0.134})
	assert.True(t, n.IsNew())
	assert.False(t, n.IsReady())
	assert.Equal(t, "e2-standard-4", n.MachineType)

	n.Pods = []*Pod{pod("a", 1.5, 4), pod("b", 0.5, 2)}
	assert.InDelta(t, 2.0, n.OccupiedCPU(), 1e-9)
	assert.InDelta(t, 6.0, n.OccupiedRAM(), 1e-9)
	assert.InDelta(t, 2.0, n.AvailableCPU(), 1e-9)
	assert.InDelta(t, 10.0, n.AvailableRAM(), 1e-9)

	assert.True(t, n.Fits(pod("c", 2, 10)), "exact fit")
	assert.False(t, n.Fits(pod("d", 2.1, 1)))
	assert.False(t, n.Fits(pod("e", 1, 10.5)))
}

func TestNodeClone(t *testing.T) {
	p := pod("a", 1, 1)
	n := &Node{Name: "worker-1", CPU: 4, RAM: 8, Pods: []*Pod{p}}

	c := n.Clone()
	c.Pods = append(c.Pods, pod("b", 1, 1))
	c.Name = "changed"

	assert.Len(t, n.Pods, 1)
	assert.Equal(t, "worker-1", n.Name)
	assert.Same(t, p, c.Pods[0])
}

func TestPodIsBound(t *testing.T) {
	p := pod("a", 1, 1)
	assert.False(t, p.IsBound())
	assert.Equal(t, "default/a", p.Key())

	p.NodeName = "worker-1"
	assert.True(t, p.IsBound())
}

func TestSnapshotReadyNodes(t *testing.T) {
	s := &ClusterSnapshot{Nodes: []*Node{
		{Name: "master", Status: NodeStatusReady, ControlPlane: true},
		{Name: "worker-1", Status: NodeStatusReady},
		{Name: "worker-2", Status: NodeStatusNotReady},
		{Name: "worker-3", Status: NodeStatusProvisioning},
	}}

	ready := s.ReadyNodes()
	require.Len(t, ready, 1)
	assert.Equal(t, "worker-1", ready[0].Name)
	assert.Equal(t, []string{"master", "worker-1", "worker-2", "worker-3"}, s.NodeNames())
	assert.Nil(t, s.Node("missing"))
	assert.Equal(t, "worker-2", s.Node("worker-2").Name)
}

func TestSnapshotPendingPods(t *testing.T) {
	bound := pod("bound", 1, 1)
	bound.NodeName = "worker-1"
	running := pod("running", 1, 1)
	running.Phase = PodRunning
	other := pod("other", 1, 1)
	other.SchedulerName = "default-scheduler"
	elsewhere := pod("elsewhere", 1, 1)
	elsewhere.Namespace = "batch"

	s := &ClusterSnapshot{Pods: []*Pod{pod("a", 1, 1), bound, running, other, elsewhere}}

	tests := []struct {
		name      string
		namespace string
		want      []string
	}{
		{"one namespace", "default", []string{"default/a"}},
		{"all namespaces", "", []string{"default/a", "batch/elsewhere"}},
		{"empty namespace", "kube-system", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, p := range s.PendingPods("cirrus", tt.namespace) {
				got = append(got, p.Key())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name    string
		snap    ClusterSnapshot
		wantErr string
	}{
		{"valid", ClusterSnapshot{Nodes: []*Node{{Name: "a"}, {Name: "b"}}, Pods: []*Pod{pod("p", 1, 1)}}, ""},
		{"unnamed node", ClusterSnapshot{Nodes: []*Node{{}}}, "without a name"},
		{"duplicate node", ClusterSnapshot{Nodes: []*Node{{Name: "a"}, {Name: "a"}}}, "duplicate node a"},
		{"negative capacity", ClusterSnapshot{Nodes: []*Node{{Name: "a", CPU: -1}}}, "negative capacity"},
		{"negative request", ClusterSnapshot{Pods: []*Pod{pod("p", 1, -1)}}, "negative request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPlanAccessors(t *testing.T) {
	boundPod := pod("bound", 1, 1)
	boundPod.NodeName = "worker-1"

	existing := &Node{Name: "worker-1", Status: NodeStatusReady, Price: 0.1, Pods: []*Pod{boundPod, pod("a", 1, 1)}}
	newNode := NewNodeFromMachineType(MachineType{Name: "m-large", CPU: 8, RAM: 32, Price: 0.4})
	newNode.Name = "m-large#1"
	newNode.Pods = []*Pod{pod("b", 4, 16)}

	plan := &Plan{Nodes: []*Node{existing, newNode}, Unplaced: []*Pod{pod("huge", 64, 512)}}

	assert.Equal(t, []*Node{newNode}, plan.NewNodes())
	assert.Equal(t, []*Node{existing}, plan.ExistingNodes())
	assert.Len(t, plan.PlacedPods(), 2)
	assert.Equal(t, 3, plan.PodCount())
	assert.False(t, plan.Empty())
	assert.InDelta(t, 0.5, plan.TotalPrice(), 1e-9)
	assert.InDelta(t, 0.4, plan.NewNodesPrice(), 1e-9)

	empty := &Plan{Nodes: []*Node{{Name: "worker-1", Status: NodeStatusReady, Pods: []*Pod{boundPod}}}}
	assert.True(t, empty.Empty())
}

func TestSortMachineTypes(t *testing.T) {
	mts := []MachineType{
		{Provider: ProviderStatic, Name: "kvm-small"},
		{Provider: ProviderGCP, Name: "e2-standard-2"},
		{Provider: ProviderAWS, Name: "t3.large"},
		{Provider: ProviderGCP, Name: "e2-highmem-2"},
	}
	SortMachineTypes(mts)

	var got []string
	for _, mt := range mts {
		got = append(got, string(mt.Provider)+"/"+mt.Name)
	}
	assert.Equal(t, []string{"aws/t3.large", "gcp/e2-highmem-2", "gcp/e2-standard-2", "static/kvm-small"}, got)
}

func TestMachineTypeCanHold(t *testing.T) {
	mt := MachineType{Name: "e2-medium", CPU: 2, RAM: 4}
	assert.True(t, mt.CanHold(pod("a", 2, 4)))
	assert.False(t, mt.CanHold(pod("b", 3, 1)))
	assert.False(t, mt.CanHold(pod("c", 1, 8)))
}

func TestNodeString(t *testing.T) {
	n := NewNodeFromMachineType(MachineType{Name: "e2-medium", CPU: 2, RAM: 4})
	assert.Equal(t, "<new>(e2-medium, 2.00 vCPU, 4.00 GiB, unscheduled)", n.String())
}
