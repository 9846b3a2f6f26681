package provisioner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Stage names the provisioning step that failed
type Stage string

const (
	StageCreate    Stage = "create"
	StageRunning   Stage = "wait_running"
	StageAddress   Stage = "address"
	StageSSH       Stage = "ssh_port"
	StageBootstrap Stage = "bootstrap"
	StageJoin      Stage = "join"
)

// ProvisionError reports a node that could not be brought up
type ProvisionError struct {
	Node  string
	Stage Stage
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision node %s: %s: %v", e.Node, e.Stage, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying: timeouts, refused
// connections, throttling and instances not visible yet.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err)
}
