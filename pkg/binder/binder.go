// Package binder assigns pending pods to nodes through the Kubernetes API.
package binder

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/cirrus/pkg/types"
	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

var (
	// ErrAlreadyBound is returned when the pod already has a node assigned
	ErrAlreadyBound = errors.New("pod already bound")

	// ErrPodNotFound is returned when the pod was deleted before binding
	ErrPodNotFound = errors.New("pod not found")
)

// Binder assigns pods to nodes
type Binder interface {
	Bind(ctx context.Context, pod *types.Pod, nodeName string) error
}

// Client binds pods through the pods/binding subresource
type Client struct {
	client kubernetes.Interface
	logger zerolog.Logger
}

// New creates a binding client
func New(client kubernetes.Interface, logger zerolog.Logger) *Client {
	return &Client{client: client, logger: logger}
}

// Bind assigns pod to nodeName. A pod that is already bound yields
// ErrAlreadyBound, which callers treat as success.
func (c *Client) Bind(ctx context.Context, pod *types.Pod, nodeName string) error {
	if nodeName == "" {
		return fmt.Errorf("bind %s: node name is required", pod.Key())
	}

	binding := &corev1.Binding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
		},
		Target: corev1.ObjectReference{
			APIVersion: "v1",
			Kind:       "Node",
			Name:       nodeName,
		},
	}

	err := c.client.CoreV1().Pods(pod.Namespace).Bind(ctx, binding, metav1.CreateOptions{})
	switch {
	case err == nil:
		c.logger.Info().Str("pod", pod.Key()).Str("node", nodeName).Msg("Pod bound")
		return nil
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		return fmt.Errorf("bind %s to %s: %w", pod.Key(), nodeName, ErrAlreadyBound)
	case apierrors.IsNotFound(err):
		return fmt.Errorf("bind %s to %s: %w", pod.Key(), nodeName, ErrPodNotFound)
	default:
		return fmt.Errorf("bind %s to %s: %w", pod.Key(), nodeName, err)
	}
}
