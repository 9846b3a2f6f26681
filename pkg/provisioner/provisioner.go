package provisioner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/cirrus/pkg/health"
	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/cuemby/cirrus/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Config controls node creation
type Config struct {
	NamePrefix        string
	PollInterval      time.Duration
	RunningTimeout    time.Duration
	JoinTimeout       time.Duration
	SSHPort           int
	SSHRetries        int
	SSHRetryInterval  time.Duration
	BootstrapCommands []string
}

// DefaultConfig returns the provisioning defaults
func DefaultConfig() Config {
	return Config{
		NamePrefix:       "node",
		PollInterval:     5 * time.Second,
		RunningTimeout:   5 * time.Minute,
		JoinTimeout:      10 * time.Minute,
		SSHPort:          22,
		SSHRetries:       10,
		SSHRetryInterval: 10 * time.Second,
	}
}

// Provisioner creates cluster nodes on a compute backend. CreateNode calls
// are serialized; names follow <prefix>-<n> with n one past the highest
// index seen so far.
type Provisioner struct {
	driver       Driver
	bootstrapper Bootstrapper
	waiter       NodeWaiter
	cfg          Config
	logger       zerolog.Logger

	mu      sync.Mutex // serializes CreateNode
	indexMu sync.Mutex
	highest int
}

// New creates a provisioner. bootstrapper and waiter may be nil to skip the
// bootstrap and join stages.
func New(driver Driver, bootstrapper Bootstrapper, waiter NodeWaiter, cfg Config, logger zerolog.Logger) *Provisioner {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "node"
	}
	return &Provisioner{
		driver:       driver,
		bootstrapper: bootstrapper,
		waiter:       waiter,
		cfg:          cfg,
		logger:       logger,
	}
}

// Providers reports which pricing providers the driver can create
func (p *Provisioner) Providers() []types.Provider {
	return p.driver.Providers()
}

// AdoptExisting raises the name counter past an existing node's index
func (p *Provisioner) AdoptExisting(node *types.Node) {
	p.adopt(node.Name)
}

// Sync recomputes the name counter from the driver's instance list
func (p *Provisioner) Sync(ctx context.Context) error {
	instances, err := p.driver.ListInstances(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}
	for _, inst := range instances {
		p.adopt(inst.Name)
	}
	return nil
}

// ExternalIPs maps instance names to their external address
func (p *Provisioner) ExternalIPs(ctx context.Context) (map[string]string, error) {
	instances, err := p.driver.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	ips := make(map[string]string, len(instances))
	for _, inst := range instances {
		if inst.ExternalIP != "" {
			ips[inst.Name] = inst.ExternalIP
		}
	}
	return ips, nil
}

func (p *Provisioner) adopt(name string) {
	idx, ok := p.index(name)
	if !ok {
		return
	}
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	if idx > p.highest {
		p.highest = idx
	}
}

// index parses n out of <prefix>-<n>
func (p *Provisioner) index(name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, p.cfg.NamePrefix+"-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// reserveName returns the next unused name and marks it used
func (p *Provisioner) reserveName() string {
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	p.highest++
	return fmt.Sprintf("%s-%d", p.cfg.NamePrefix, p.highest)
}

// CreateNode provisions one node of the machine type and blocks until it is
// Ready in the cluster. Failures are returned as *ProvisionError.
func (p *Provisioner) CreateNode(ctx context.Context, mt types.MachineType) (*types.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := p.reserveName()
	logger := p.logger.With().Str("node", name).Str("machine_type", mt.Name).Logger()
	timer := metrics.NewTimer()

	fail := func(stage Stage, err error) (*types.Node, error) {
		metrics.ProvisioningFailures.WithLabelValues(string(stage)).Inc()
		logger.Error().Err(err).Str("stage", string(stage)).Msg("Node provisioning failed")
		return nil, &ProvisionError{Node: name, Stage: stage, Err: err}
	}

	logger.Info().Msg("Creating instance")
	if err := p.driver.CreateInstance(ctx, name, mt); err != nil {
		return fail(StageCreate, err)
	}

	inst, err := p.waitRunning(ctx, name)
	if err != nil {
		return fail(StageRunning, err)
	}

	host := inst.Address()
	if host == "" {
		return fail(StageAddress, errors.New("instance has no network address"))
	}
	logger.Info().Str("address", host).Msg("Instance running")

	if p.bootstrapper != nil && len(p.cfg.BootstrapCommands) > 0 {
		checker := health.NewSSHChecker(host, p.cfg.SSHPort)
		if _, err := health.WaitHealthy(ctx, checker, health.Config{
			Interval: p.cfg.SSHRetryInterval,
			Retries:  p.cfg.SSHRetries,
		}); err != nil {
			return fail(StageSSH, err)
		}

		if err := p.bootstrapper.Bootstrap(ctx, host, p.cfg.BootstrapCommands); err != nil {
			return fail(StageBootstrap, err)
		}
		logger.Info().Msg("Bootstrap complete")
	}

	if p.waiter != nil {
		if err := p.waiter.WaitReady(ctx, name, p.cfg.JoinTimeout); err != nil {
			return fail(StageJoin, err)
		}
	}

	timer.ObserveDuration(metrics.ProvisioningDuration)
	metrics.NodesProvisioned.WithLabelValues(mt.Name).Inc()
	logger.Info().Dur("duration", timer.Duration()).Msg("Node ready")

	node := types.NewNodeFromMachineType(mt)
	node.Name = name
	node.Status = types.NodeStatusReady
	node.InternalIP = inst.InternalIP
	node.ExternalIP = inst.ExternalIP
	return node, nil
}

// waitRunning polls the driver until the instance is RUNNING. Transient
// lookup errors, including not-found right after creation, are polled through.
func (p *Provisioner) waitRunning(ctx context.Context, name string) (*Instance, error) {
	var inst *Instance
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, p.cfg.PollInterval, p.cfg.RunningTimeout, true, func(ctx context.Context) (bool, error) {
		got, err := p.driver.GetInstance(ctx, name)
		if err != nil {
			if IsTransient(err) {
				lastErr = err
				return false, nil
			}
			return false, err
		}
		inst = got
		return got.State == InstanceRunning, nil
	})
	if err != nil {
		if wait.Interrupted(err) {
			if lastErr != nil {
				return nil, fmt.Errorf("instance not running after %s: %w", p.cfg.RunningTimeout, lastErr)
			}
			return nil, fmt.Errorf("instance not running after %s", p.cfg.RunningTimeout)
		}
		return nil, err
	}
	return inst, nil
}
