package libvirt

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog"

	"github.com/cuemby/cirrus/pkg/provisioner"
	"github.com/cuemby/cirrus/pkg/types"
)

const (
	addressSourceLease = 0 // VIR_DOMAIN_INTERFACE_ADDRESSES_SRC_LEASE
	ipAddrTypeIPv4     = 0 // VIR_IP_ADDR_TYPE_IPV4
	listActiveInactive = 0
)

// Hypervisor is the subset of the libvirt RPC API the driver uses
type Hypervisor interface {
	DomainLookupByName(name string) (golibvirt.Domain, error)
	DomainDefineXML(xml string) (golibvirt.Domain, error)
	DomainCreate(dom golibvirt.Domain) error
	DomainSetAutostart(dom golibvirt.Domain, autostart int32) error
	DomainGetInfo(dom golibvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	DomainInterfaceAddresses(dom golibvirt.Domain, source uint32, flags uint32) ([]golibvirt.DomainInterface, error)
	ConnectListAllDomains(needResults int32, flags golibvirt.ConnectListAllDomainsFlags) ([]golibvirt.Domain, uint32, error)
}

// Config describes where domains are created and how they boot
type Config struct {
	URI        string
	BaseImage  string
	ImageDir   string
	Network    string
	DiskSizeGB int64
}

// Driver runs cluster nodes as libvirt domains backed by qcow2 overlays of
// a prepared base image
type Driver struct {
	hv         Hypervisor
	cfg        Config
	logger     zerolog.Logger
	createDisk func(ctx context.Context, base, path string, sizeGB int64) error
	notFound   func(error) bool
	mu         sync.Mutex
}

// Connect dials the libvirt daemon at uri
func Connect(uri string) (*golibvirt.Libvirt, error) {
	if uri == "" {
		uri = string(golibvirt.QEMUSystem)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse libvirt uri %q: %w", uri, err)
	}
	l, err := golibvirt.ConnectToURI(u)
	if err != nil {
		return nil, fmt.Errorf("connect to libvirt: %w", err)
	}
	return l, nil
}

// NewDriver creates a driver over hv
func NewDriver(hv Hypervisor, cfg Config, logger zerolog.Logger) *Driver {
	if cfg.ImageDir == "" {
		cfg.ImageDir = "/var/lib/libvirt/images"
	}
	if cfg.Network == "" {
		cfg.Network = "default"
	}
	return &Driver{
		hv:         hv,
		cfg:        cfg,
		logger:     logger,
		createDisk: createOverlay,
		notFound:   golibvirt.IsNotFound,
	}
}

// CreateInstance creates the overlay disk, defines the domain sized from the
// machine type and starts it
func (d *Driver) CreateInstance(ctx context.Context, name string, mt types.MachineType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.hv.DomainLookupByName(name); err == nil {
		return fmt.Errorf("domain %s already exists", name)
	} else if !d.notFound(err) {
		return fmt.Errorf("lookup domain %s: %w", name, err)
	}

	disk := filepath.Join(d.cfg.ImageDir, name+".qcow2")
	if err := d.createDisk(ctx, d.cfg.BaseImage, disk, d.cfg.DiskSizeGB); err != nil {
		return err
	}

	definition, err := buildDomainXML(name, mt, disk, d.cfg.Network)
	if err != nil {
		return err
	}
	dom, err := d.hv.DomainDefineXML(definition)
	if err != nil {
		return fmt.Errorf("define domain %s: %w", name, err)
	}
	if err := d.hv.DomainSetAutostart(dom, 1); err != nil {
		return fmt.Errorf("set autostart %s: %w", name, err)
	}
	if err := d.hv.DomainCreate(dom); err != nil {
		return fmt.Errorf("start domain %s: %w", name, err)
	}

	d.logger.Debug().Str("node", name).Str("machine_type", mt.Name).Str("disk", disk).Msg("Domain started")
	return nil
}

// GetInstance reports the domain state and its DHCP-leased addresses
// Providers returns nil: a domain can be sized to any machine type
func (d *Driver) Providers() []types.Provider {
	return nil
}

func (d *Driver) GetInstance(ctx context.Context, name string) (*provisioner.Instance, error) {
	dom, err := d.hv.DomainLookupByName(name)
	if err != nil {
		if d.notFound(err) {
			return nil, fmt.Errorf("domain %s: %w", name, provisioner.ErrNotFound)
		}
		return nil, fmt.Errorf("lookup domain %s: %w", name, err)
	}
	return d.instance(dom)
}

// ListInstances lists active and inactive domains
func (d *Driver) ListInstances(ctx context.Context) ([]*provisioner.Instance, error) {
	doms, _, err := d.hv.ConnectListAllDomains(1, listActiveInactive)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	out := make([]*provisioner.Instance, 0, len(doms))
	for _, dom := range doms {
		inst, err := d.instance(dom)
		if err != nil {
			d.logger.Warn().Err(err).Str("domain", dom.Name).Msg("Failed to inspect domain")
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (d *Driver) instance(dom golibvirt.Domain) (*provisioner.Instance, error) {
	st, _, _, _, _, err := d.hv.DomainGetInfo(dom)
	if err != nil {
		return nil, fmt.Errorf("domain info %s: %w", dom.Name, err)
	}
	inst := &provisioner.Instance{Name: dom.Name, State: state(st)}
	if inst.State != provisioner.InstanceRunning {
		return inst, nil
	}

	ifaces, err := d.hv.DomainInterfaceAddresses(dom, addressSourceLease, 0)
	if err != nil {
		// Leases appear some seconds after boot.
		d.logger.Debug().Err(err).Str("domain", dom.Name).Msg("No interface addresses yet")
		return inst, nil
	}
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			if addr.Type == ipAddrTypeIPv4 && inst.InternalIP == "" {
				inst.InternalIP = addr.Addr
			}
		}
	}
	return inst, nil
}

func state(st uint8) provisioner.InstanceState {
	switch golibvirt.DomainState(st) {
	case golibvirt.DomainRunning, golibvirt.DomainBlocked:
		return provisioner.InstanceRunning
	case golibvirt.DomainShutoff, golibvirt.DomainShutdown, golibvirt.DomainCrashed, golibvirt.DomainPaused, golibvirt.DomainPmsuspended:
		return provisioner.InstanceStopped
	case golibvirt.DomainNostate:
		return provisioner.InstancePending
	default:
		return provisioner.InstanceUnknown
	}
}

// createOverlay creates a copy-on-write disk on top of the base image
func createOverlay(ctx context.Context, base, path string, sizeGB int64) error {
	if base == "" {
		return errors.New("base image is required")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("disk image already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat disk image: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare disk directory: %w", err)
	}

	args := []string{"create", "-f", "qcow2", "-F", "qcow2", "-b", base, path}
	if sizeGB > 0 {
		args = append(args, fmt.Sprintf("%dG", sizeGB))
	}
	cmd := exec.CommandContext(ctx, "qemu-img", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("create disk image: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

type domainXML struct {
	XMLName       xml.Name   `xml:"domain"`
	Type          string     `xml:"type,attr"`
	Name          string     `xml:"name"`
	Title         string     `xml:"title,omitempty"`
	Memory        memoryXML  `xml:"memory"`
	CurrentMemory memoryXML  `xml:"currentMemory"`
	VCPU          vcpuXML    `xml:"vcpu"`
	OS            osXML      `xml:"os"`
	CPU           cpuXML     `xml:"cpu"`
	OnPoweroff    string     `xml:"on_poweroff"`
	OnReboot      string     `xml:"on_reboot"`
	OnCrash       string     `xml:"on_crash"`
	Devices       devicesXML `xml:"devices"`
}

type memoryXML struct {
	Unit  string `xml:"unit,attr"`
	Value string `xml:",chardata"`
}

type vcpuXML struct {
	Placement string `xml:"placement,attr"`
	Value     string `xml:",chardata"`
}

type osXML struct {
	Type osTypeXML `xml:"type"`
	Boot bootXML   `xml:"boot"`
}

type osTypeXML struct {
	Arch  string `xml:"arch,attr"`
	Value string `xml:",chardata"`
}

type bootXML struct {
	Dev string `xml:"dev,attr"`
}

type cpuXML struct {
	Mode string `xml:"mode,attr"`
}

type devicesXML struct {
	Disks      []diskXML  `xml:"disk"`
	Interfaces []ifaceXML `xml:"interface"`
	Console    typeXML    `xml:"console"`
}

type diskXML struct {
	Type   string    `xml:"type,attr"`
	Device string    `xml:"device,attr"`
	Driver driverXML `xml:"driver"`
	Source sourceXML `xml:"source"`
	Target targetXML `xml:"target"`
}

type driverXML struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type sourceXML struct {
	File    string `xml:"file,attr,omitempty"`
	Network string `xml:"network,attr,omitempty"`
}

type targetXML struct {
	Dev string `xml:"dev,attr"`
	Bus string `xml:"bus,attr"`
}

type ifaceXML struct {
	Type   string    `xml:"type,attr"`
	Source sourceXML `xml:"source"`
	Model  typeXML   `xml:"model"`
}

type typeXML struct {
	Type string `xml:"type,attr"`
}

func buildDomainXML(name string, mt types.MachineType, disk, network string) (string, error) {
	vcpus := int(math.Ceil(mt.CPU))
	memMiB := int64(math.Ceil(mt.RAM * 1024))
	if vcpus <= 0 || memMiB <= 0 {
		return "", fmt.Errorf("machine type %s has no cpu or memory", mt.Name)
	}

	d := domainXML{
		Type:          "kvm",
		Name:          name,
		Title:         mt.Name,
		Memory:        memoryXML{Unit: "MiB", Value: strconv.FormatInt(memMiB, 10)},
		CurrentMemory: memoryXML{Unit: "MiB", Value: strconv.FormatInt(memMiB, 10)},
		VCPU:          vcpuXML{Placement: "static", Value: strconv.Itoa(vcpus)},
		OS: osXML{
			Type: osTypeXML{Arch: "x86_64", Value: "hvm"},
			Boot: bootXML{Dev: "hd"},
		},
		CPU:        cpuXML{Mode: "host-passthrough"},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: devicesXML{
			Disks: []diskXML{{
				Type:   "file",
				Device: "disk",
				Driver: driverXML{Name: "qemu", Type: "qcow2"},
				Source: sourceXML{File: disk},
				Target: targetXML{Dev: "vda", Bus: "virtio"},
			}},
			Interfaces: []ifaceXML{{
				Type:   "network",
				Source: sourceXML{Network: network},
				Model:  typeXML{Type: "virtio"},
			}},
			Console: typeXML{Type: "pty"},
		},
	}
	out, err := xml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal domain %s: %w", name, err)
	}
	return string(out), nil
}
