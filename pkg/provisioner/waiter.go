package provisioner

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// NodeWaiter blocks until a node has joined the cluster and reports Ready
type NodeWaiter interface {
	WaitReady(ctx context.Context, name string, timeout time.Duration) error
}

// KubeNodeWaiter polls the Kubernetes API for the node's Ready condition
type KubeNodeWaiter struct {
	client   kubernetes.Interface
	interval time.Duration
	logger   zerolog.Logger
}

// NewKubeNodeWaiter creates a waiter polling at interval
func NewKubeNodeWaiter(client kubernetes.Interface, interval time.Duration, logger zerolog.Logger) *KubeNodeWaiter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &KubeNodeWaiter{client: client, interval: interval, logger: logger}
}

// WaitReady polls until the node is Ready. API errors are logged and polled
// through; only the timeout ends the wait early.
func (w *KubeNodeWaiter) WaitReady(ctx context.Context, name string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, w.interval, timeout, true, func(ctx context.Context) (bool, error) {
		node, err := w.client.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			w.logger.Debug().Err(err).Str("node", name).Msg("Node lookup failed, retrying")
			return false, nil
		}
		return nodeReady(node), nil
	})
}

func nodeReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
