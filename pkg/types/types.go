package types

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Provider identifies a cloud pricing/provisioning backend
type Provider string

const (
	ProviderGCP    Provider = "gcp"
	ProviderAWS    Provider = "aws"
	ProviderStatic Provider = "static"
)

// MachineType is a purchasable instance shape from a provider catalog
type MachineType struct {
	Provider Provider `json:"provider" yaml:"provider"`
	Name     string   `json:"name" yaml:"name"`
	CPU      float64  `json:"cpu" yaml:"cpu"`     // vCPU count
	RAM      float64  `json:"ram" yaml:"ram"`     // GiB
	Price    float64  `json:"price" yaml:"price"` // on-demand USD per hour
}

// Validate checks the catalog invariants
func (m MachineType) Validate() error {
	if m.Name == "" {
		return errors.New("machine type name is required")
	}
	if m.CPU < 0 || m.RAM < 0 || m.Price < 0 {
		return fmt.Errorf("machine type %s: cpu, ram and price must be >= 0", m.Name)
	}
	return nil
}

// CanHold reports whether an empty instance of this type fits the pod
func (m MachineType) CanHold(p *Pod) bool {
	return m.CPU >= p.CPU && m.RAM >= p.RAM
}

// NodeStatus represents the lifecycle state of a node
type NodeStatus string

const (
	NodeStatusUnscheduled  NodeStatus = "unscheduled"  // proposed by a plan, not created
	NodeStatusProvisioning NodeStatus = "provisioning" // creation or bootstrap in flight
	NodeStatusReady        NodeStatus = "ready"
	NodeStatusNotReady     NodeStatus = "not-ready"
)

// Node is a worker machine, either present in the cluster or proposed by a plan
type Node struct {
	Name         string
	MachineType  string
	Provider     Provider
	CPU          float64 // total vCPU
	RAM          float64 // total GiB
	Price        float64 // USD per hour
	Status       NodeStatus
	InternalIP   string
	ExternalIP   string
	Hostname     string
	ControlPlane bool
	Pods         []*Pod
}

// NewNodeFromMachineType returns an unscheduled candidate node of the given type
func NewNodeFromMachineType(mt MachineType) *Node {
	return &Node{
		MachineType: mt.Name,
		Provider:    mt.Provider,
		CPU:         mt.CPU,
		RAM:         mt.RAM,
		Price:       mt.Price,
		Status:      NodeStatusUnscheduled,
	}
}

// OccupiedCPU is the sum of vCPU requested by assigned pods
func (n *Node) OccupiedCPU() float64 {
	var total float64
	for _, p := range n.Pods {
		total += p.CPU
	}
	return total
}

// OccupiedRAM is the sum of RAM requested by assigned pods
func (n *Node) OccupiedRAM() float64 {
	var total float64
	for _, p := range n.Pods {
		total += p.RAM
	}
	return total
}

func (n *Node) AvailableCPU() float64 { return n.CPU - n.OccupiedCPU() }

func (n *Node) AvailableRAM() float64 { return n.RAM - n.OccupiedRAM() }

// Fits reports whether the pod's request fits the node's free capacity
func (n *Node) Fits(p *Pod) bool {
	return n.AvailableCPU() >= p.CPU && n.AvailableRAM() >= p.RAM
}

// IsNew reports whether the node still has to be created
func (n *Node) IsNew() bool {
	return n.Status == NodeStatusUnscheduled
}

// IsReady reports whether the node can take pods right now
func (n *Node) IsReady() bool {
	return n.Status == NodeStatusReady
}

// Clone copies the node and its pod list. Pods are shared, not copied.
func (n *Node) Clone() *Node {
	c := *n
	c.Pods = make([]*Pod, len(n.Pods))
	copy(c.Pods, n.Pods)
	return &c
}

func (n *Node) String() string {
	name := n.Name
	if name == "" {
		name = "<new>"
	}
	return fmt.Sprintf("%s(%s, %.2f vCPU, %.2f GiB, %s)", name, n.MachineType, n.CPU, n.RAM, n.Status)
}

// PodPhase mirrors the orchestration platform's pod phase
type PodPhase string

const (
	PodPending     PodPhase = "Pending"
	PodScheduled   PodPhase = "Scheduled"
	PodRunning     PodPhase = "Running"
	PodSucceeded   PodPhase = "Succeeded"
	PodFailed      PodPhase = "Failed"
	PodTerminating PodPhase = "Terminating"
	PodUnknown     PodPhase = "Unknown"
)

// Pod is a schedulable unit of work
type Pod struct {
	Name          string
	Namespace     string
	CPU           float64 // requested vCPU
	RAM           float64 // requested GiB
	Phase         PodPhase
	NodeName      string // empty until bound
	SchedulerName string
}

// Key returns namespace/name
func (p *Pod) Key() string {
	return p.Namespace + "/" + p.Name
}

// IsBound reports whether the pod already carries a node reference
func (p *Pod) IsBound() bool {
	return p.NodeName != ""
}

func (p *Pod) String() string {
	return fmt.Sprintf("%s(%.2f vCPU, %.2f GiB, %s)", p.Key(), p.CPU, p.RAM, p.Phase)
}

// ClusterSnapshot is a point-in-time, fully rebuilt view of nodes and pods
type ClusterSnapshot struct {
	Nodes   []*Node
	Pods    []*Pod
	TakenAt time.Time
}

// Node returns the node with the given name, or nil
func (s *ClusterSnapshot) Node(name string) *Node {
	for _, n := range s.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// NodeNames returns the names of all nodes in the snapshot
func (s *ClusterSnapshot) NodeNames() []string {
	names := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		names = append(names, n.Name)
	}
	return names
}

// ReadyNodes returns worker nodes that can receive pods
func (s *ClusterSnapshot) ReadyNodes() []*Node {
	var ready []*Node
	for _, n := range s.Nodes {
		if n.IsReady() && !n.ControlPlane {
			ready = append(ready, n)
		}
	}
	return ready
}

// PendingPods returns unbound pending pods tagged for the given scheduler.
// An empty namespace matches every namespace.
func (s *ClusterSnapshot) PendingPods(schedulerName, namespace string) []*Pod {
	var pending []*Pod
	for _, p := range s.Pods {
		if p.Phase != PodPending || p.IsBound() {
			continue
		}
		if p.SchedulerName != schedulerName {
			continue
		}
		if namespace != "" && p.Namespace != namespace {
			continue
		}
		pending = append(pending, p)
	}
	return pending
}

// Validate rejects snapshots the optimizer cannot reason about
func (s *ClusterSnapshot) Validate() error {
	seen := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Name == "" {
			return errors.New("snapshot contains a node without a name")
		}
		if seen[n.Name] {
			return fmt.Errorf("snapshot contains duplicate node %s", n.Name)
		}
		seen[n.Name] = true
		if n.CPU < 0 || n.RAM < 0 {
			return fmt.Errorf("node %s has negative capacity", n.Name)
		}
	}
	for _, p := range s.Pods {
		if p.CPU < 0 || p.RAM < 0 {
			return fmt.Errorf("pod %s has negative request", p.Key())
		}
	}
	return nil
}

// Plan is the optimizer's proposed node/pod assignment for one cycle
type Plan struct {
	Nodes    []*Node
	Unplaced []*Pod
}

// NewNodes returns nodes that must be created
func (p *Plan) NewNodes() []*Node {
	var out []*Node
	for _, n := range p.Nodes {
		if n.IsNew() {
			out = append(out, n)
		}
	}
	return out
}

// ExistingNodes returns nodes that are already part of the cluster
func (p *Plan) ExistingNodes() []*Node {
	var out []*Node
	for _, n := range p.Nodes {
		if !n.IsNew() {
			out = append(out, n)
		}
	}
	return out
}

// PlacedPods returns every pod the plan assigns that is not yet bound
func (p *Plan) PlacedPods() []*Pod {
	var out []*Pod
	for _, n := range p.Nodes {
		for _, pod := range n.Pods {
			if !pod.IsBound() {
				out = append(out, pod)
			}
		}
	}
	return out
}

// PodCount returns the number of pods on plan nodes, bound or not
func (p *Plan) PodCount() int {
	var n int
	for _, node := range p.Nodes {
		n += len(node.Pods)
	}
	return n
}

// Empty reports whether the plan places no pending pod
func (p *Plan) Empty() bool {
	return len(p.PlacedPods()) == 0
}

// TotalPrice sums the hourly price of every node in the plan, once per node
func (p *Plan) TotalPrice() float64 {
	var total float64
	for _, n := range p.Nodes {
		total += n.Price
	}
	return total
}

// NewNodesPrice sums the hourly price of nodes the plan would create
func (p *Plan) NewNodesPrice() float64 {
	var total float64
	for _, n := range p.NewNodes() {
		total += n.Price
	}
	return total
}

// SortMachineTypes orders machine types by provider, then name
func SortMachineTypes(mts []MachineType) {
	sort.Slice(mts, func(i, j int) bool {
		if mts[i].Provider != mts[j].Provider {
			return mts[i].Provider < mts[j].Provider
		}
		return mts[i].Name < mts[j].Name
	})
}
