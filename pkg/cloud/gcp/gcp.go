// Package gcp implements the provisioner Driver on Compute Engine.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"github.com/cuemby/cirrus/pkg/provisioner"
	"github.com/cuemby/cirrus/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/proto"
)

// Config locates instances and describes their boot disk and network
type Config struct {
	Project    string
	Zone       string
	Image      string
	Network    string
	DiskSizeGB int64
	// Labels are attached to every created instance
	Labels map[string]string
}

// InstancesAPI is the subset of the Compute instances service the driver uses
type InstancesAPI interface {
	Insert(ctx context.Context, req *computepb.InsertInstanceRequest) error
	Get(ctx context.Context, req *computepb.GetInstanceRequest) (*computepb.Instance, error)
	List(ctx context.Context, req *computepb.ListInstancesRequest) ([]*computepb.Instance, error)
}

// Driver creates Compute Engine instances
type Driver struct {
	api    InstancesAPI
	cfg    Config
	logger zerolog.Logger
}

// NewDriver creates a driver over api
func NewDriver(api InstancesAPI, cfg Config, logger zerolog.Logger) *Driver {
	return &Driver{api: api, cfg: cfg, logger: logger}
}

// CreateInstance inserts the instance and waits for the insert operation
func (d *Driver) CreateInstance(ctx context.Context, name string, mt types.MachineType) error {
	req := &computepb.InsertInstanceRequest{
		Project:          d.cfg.Project,
		Zone:             d.cfg.Zone,
		InstanceResource: d.instanceResource(name, mt),
	}
	if err := d.api.Insert(ctx, req); err != nil {
		return fmt.Errorf("insert instance %s: %w", name, convertError(err))
	}
	d.logger.Debug().Str("node", name).Str("machine_type", mt.Name).Msg("Instance insert completed")
	return nil
}

// GetInstance returns provisioner.ErrNotFound for a 404
// Providers reports that only GCP machine types exist on Compute Engine
func (d *Driver) Providers() []types.Provider {
	return []types.Provider{types.ProviderGCP}
}

func (d *Driver) GetInstance(ctx context.Context, name string) (*provisioner.Instance, error) {
	inst, err := d.api.Get(ctx, &computepb.GetInstanceRequest{
		Project:  d.cfg.Project,
		Zone:     d.cfg.Zone,
		Instance: name,
	})
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", name, convertError(err))
	}
	return toInstance(inst), nil
}

// ListInstances lists every instance in the zone
func (d *Driver) ListInstances(ctx context.Context) ([]*provisioner.Instance, error) {
	list, err := d.api.List(ctx, &computepb.ListInstancesRequest{
		Project: d.cfg.Project,
		Zone:    d.cfg.Zone,
	})
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", convertError(err))
	}
	out := make([]*provisioner.Instance, 0, len(list))
	for _, inst := range list {
		out = append(out, toInstance(inst))
	}
	return out, nil
}

func (d *Driver) instanceResource(name string, mt types.MachineType) *computepb.Instance {
	return &computepb.Instance{
		Name:        proto.String(name),
		MachineType: proto.String(fmt.Sprintf("zones/%s/machineTypes/%s", d.cfg.Zone, mt.Name)),
		Labels:      d.cfg.Labels,
		Disks: []*computepb.AttachedDisk{
			{
				Boot:       proto.Bool(true),
				AutoDelete: proto.Bool(true),
				InitializeParams: &computepb.AttachedDiskInitializeParams{
					SourceImage: proto.String(d.cfg.Image),
					DiskSizeGb:  proto.Int64(d.cfg.DiskSizeGB),
				},
			},
		},
		NetworkInterfaces: []*computepb.NetworkInterface{
			{
				Network: proto.String(d.cfg.Network),
				AccessConfigs: []*computepb.AccessConfig{
					{
						Name: proto.String("External NAT"),
						Type: proto.String(computepb.AccessConfig_ONE_TO_ONE_NAT.String()),
					},
				},
			},
		},
	}
}

func toInstance(inst *computepb.Instance) *provisioner.Instance {
	out := &provisioner.Instance{
		Name:        inst.GetName(),
		MachineType: path.Base(inst.GetMachineType()),
		State:       state(inst.GetStatus()),
	}
	for _, nic := range inst.GetNetworkInterfaces() {
		if out.InternalIP == "" {
			out.InternalIP = nic.GetNetworkIP()
		}
		for _, ac := range nic.GetAccessConfigs() {
			if out.ExternalIP == "" {
				out.ExternalIP = ac.GetNatIP()
			}
		}
	}
	return out
}

func state(status string) provisioner.InstanceState {
	switch status {
	case "PROVISIONING", "STAGING":
		return provisioner.InstancePending
	case "RUNNING":
		return provisioner.InstanceRunning
	case "STOPPING", "STOPPED", "SUSPENDING", "SUSPENDED", "TERMINATED":
		return provisioner.InstanceStopped
	default:
		return provisioner.InstanceUnknown
	}
}

func convertError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", provisioner.ErrNotFound, gerr.Message)
	}
	return err
}

// Client implements InstancesAPI with the Compute REST client
type Client struct {
	instances *compute.InstancesClient
}

// NewClient creates the instances client. An empty credentialsFile uses
// application default credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := compute.NewInstancesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create instances client: %w", err)
	}
	return &Client{instances: c}, nil
}

// Close releases the client
func (c *Client) Close() error {
	return c.instances.Close()
}

// Insert starts the insert and waits for the zonal operation to finish
func (c *Client) Insert(ctx context.Context, req *computepb.InsertInstanceRequest) error {
	op, err := c.instances.Insert(ctx, req)
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (c *Client) Get(ctx context.Context, req *computepb.GetInstanceRequest) (*computepb.Instance, error) {
	return c.instances.Get(ctx, req)
}

func (c *Client) List(ctx context.Context, req *computepb.ListInstancesRequest) ([]*computepb.Instance, error) {
	it := c.instances.List(ctx, req)
	var out []*computepb.Instance
	for {
		inst, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
