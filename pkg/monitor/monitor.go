package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/types"
	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	// LabelInstanceType carries the cloud machine type of a node
	LabelInstanceType = "node.kubernetes.io/instance-type"

	// LabelControlPlane marks control-plane nodes
	LabelControlPlane = "node-role.kubernetes.io/control-plane"

	gib = 1 << 30
)

// AddressResolver supplies external IPs known to the compute backend, keyed
// by node name. Used when the cluster does not report one.
type AddressResolver interface {
	ExternalIPs(ctx context.Context) (map[string]string, error)
}

// Config selects which pods the monitor reports as schedulable work
type Config struct {
	SchedulerName     string
	Namespace         string // empty watches every namespace
	ControlPlaneNames []string
}

// ClusterMonitor builds cluster snapshots from the Kubernetes API
type ClusterMonitor struct {
	client    kubernetes.Interface
	cfg       Config
	pricing   *pricing.Cache
	addresses AddressResolver
	logger    zerolog.Logger
}

// New creates a cluster monitor. cache may be nil, in which case nodes carry
// no machine type price.
func New(client kubernetes.Interface, cfg Config, cache *pricing.Cache, logger zerolog.Logger) *ClusterMonitor {
	return &ClusterMonitor{
		client:  client,
		cfg:     cfg,
		pricing: cache,
		logger:  logger,
	}
}

// SetAddressResolver installs a fallback source for node external IPs
func (m *ClusterMonitor) SetAddressResolver(r AddressResolver) {
	m.addresses = r
}

// Refresh lists all nodes and the pods of every namespace and returns a
// freshly built snapshot
func (m *ClusterMonitor) Refresh(ctx context.Context) (*types.ClusterSnapshot, error) {
	nodeList, err := m.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	// Every namespace counts toward node occupancy; only pending work is
	// narrowed to the watched namespace.
	podList, err := m.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	var table *pricing.Table
	if m.pricing != nil {
		table = m.pricing.Snapshot()
	}

	var external map[string]string
	if m.addresses != nil {
		external, err = m.addresses.ExternalIPs(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Failed to resolve node external IPs")
		}
	}

	snapshot := &types.ClusterSnapshot{TakenAt: time.Now()}
	byName := make(map[string]*types.Node, len(nodeList.Items))
	for i := range nodeList.Items {
		node := m.convertNode(&nodeList.Items[i], table)
		if node.ExternalIP == "" {
			node.ExternalIP = external[node.Name]
		}
		snapshot.Nodes = append(snapshot.Nodes, node)
		byName[node.Name] = node
	}

	for i := range podList.Items {
		pod := convertPod(&podList.Items[i])
		snapshot.Pods = append(snapshot.Pods, pod)

		if !pod.IsBound() || !consumesCapacity(pod) {
			continue
		}
		node, ok := byName[pod.NodeName]
		if !ok {
			m.logger.Debug().Str("pod", pod.Key()).Str("node", pod.NodeName).Msg("Pod bound to unknown node")
			continue
		}
		node.Pods = append(node.Pods, pod)
	}

	m.logger.Debug().
		Int("nodes", len(snapshot.Nodes)).
		Int("pods", len(snapshot.Pods)).
		Msg("Cluster snapshot refreshed")

	return snapshot, nil
}

// PendingPods returns unbound pending pods tagged for the configured scheduler
func (m *ClusterMonitor) PendingPods(ctx context.Context) ([]*types.Pod, error) {
	podList, err := m.client.CoreV1().Pods(m.cfg.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	var pending []*types.Pod
	for i := range podList.Items {
		pod := convertPod(&podList.Items[i])
		if pod.Phase == types.PodPending && !pod.IsBound() && pod.SchedulerName == m.cfg.SchedulerName {
			pending = append(pending, pod)
		}
	}
	return pending, nil
}

// CountPending implements PendingCounter
func (m *ClusterMonitor) CountPending(ctx context.Context) (int, error) {
	pods, err := m.PendingPods(ctx)
	if err != nil {
		return 0, err
	}
	return len(pods), nil
}

func (m *ClusterMonitor) convertNode(n *corev1.Node, table *pricing.Table) *types.Node {
	node := &types.Node{
		Name:         n.Name,
		MachineType:  n.Labels[LabelInstanceType],
		CPU:          cpuCores(n.Status.Capacity[corev1.ResourceCPU]),
		RAM:          gibibytes(n.Status.Capacity[corev1.ResourceMemory]),
		Status:       nodeStatus(n),
		ControlPlane: m.isControlPlane(n),
	}

	for _, addr := range n.Status.Addresses {
		switch addr.Type {
		case corev1.NodeInternalIP:
			node.InternalIP = addr.Address
		case corev1.NodeExternalIP:
			node.ExternalIP = addr.Address
		case corev1.NodeHostName:
			node.Hostname = addr.Address
		}
	}

	if table != nil && node.MachineType != "" {
		if mt, ok := table.Get(node.MachineType); ok {
			node.Provider = mt.Provider
			node.Price = mt.Price
		}
	}
	return node
}

func (m *ClusterMonitor) isControlPlane(n *corev1.Node) bool {
	if _, ok := n.Labels[LabelControlPlane]; ok {
		return true
	}
	for _, name := range m.cfg.ControlPlaneNames {
		if n.Name == name {
			return true
		}
	}
	return false
}

func nodeStatus(n *corev1.Node) types.NodeStatus {
	if n.Spec.Unschedulable {
		return types.NodeStatusNotReady
	}
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status == corev1.ConditionTrue {
				return types.NodeStatusReady
			}
			return types.NodeStatusNotReady
		}
	}
	return types.NodeStatusNotReady
}

func convertPod(p *corev1.Pod) *types.Pod {
	pod := &types.Pod{
		Name:          p.Name,
		Namespace:     p.Namespace,
		NodeName:      p.Spec.NodeName,
		SchedulerName: p.Spec.SchedulerName,
		Phase:         podPhase(p),
	}
	for _, c := range p.Spec.Containers {
		pod.CPU += cpuCores(c.Resources.Requests[corev1.ResourceCPU])
		pod.RAM += gibibytes(c.Resources.Requests[corev1.ResourceMemory])
	}
	return pod
}

func podPhase(p *corev1.Pod) types.PodPhase {
	if p.DeletionTimestamp != nil {
		return types.PodTerminating
	}
	switch p.Status.Phase {
	case corev1.PodPending:
		if p.Spec.NodeName != "" {
			return types.PodScheduled
		}
		return types.PodPending
	case corev1.PodRunning:
		return types.PodRunning
	case corev1.PodSucceeded:
		return types.PodSucceeded
	case corev1.PodFailed:
		return types.PodFailed
	case "":
		return types.PodPending
	default:
		return types.PodUnknown
	}
}

// consumesCapacity reports whether a bound pod still holds node resources
func consumesCapacity(p *types.Pod) bool {
	return p.Phase != types.PodSucceeded && p.Phase != types.PodFailed
}

func cpuCores(q resource.Quantity) float64 {
	return float64(q.MilliValue()) / 1000
}

func gibibytes(q resource.Quantity) float64 {
	return float64(q.Value()) / gib
}
