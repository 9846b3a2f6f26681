package provisioner

import (
	"context"
	"errors"

	"github.com/cuemby/cirrus/pkg/types"
)

// ErrNotFound is returned by drivers when an instance does not exist (yet)
var ErrNotFound = errors.New("instance not found")

// InstanceState is the compute backend's view of an instance
type InstanceState string

const (
	InstancePending InstanceState = "PENDING"
	InstanceRunning InstanceState = "RUNNING"
	InstanceStopped InstanceState = "STOPPED"
	InstanceUnknown InstanceState = "UNKNOWN"
)

// Instance is a virtual machine as reported by a Driver
type Instance struct {
	Name        string
	MachineType string
	State       InstanceState
	InternalIP  string
	ExternalIP  string
}

// Address returns the address used to reach the instance over SSH
func (i *Instance) Address() string {
	if i.ExternalIP != "" {
		return i.ExternalIP
	}
	return i.InternalIP
}

// Driver creates and inspects instances on one compute backend
type Driver interface {
	// CreateInstance starts creating a named instance of the machine type.
	// It may return before the instance is running.
	CreateInstance(ctx context.Context, name string, mt types.MachineType) error

	// GetInstance returns ErrNotFound while the instance is not visible yet
	GetInstance(ctx context.Context, name string) (*Instance, error)

	ListInstances(ctx context.Context) ([]*Instance, error)

	// Providers lists the pricing providers whose machine types the backend
	// can create. Nil accepts any machine type.
	Providers() []types.Provider
}
