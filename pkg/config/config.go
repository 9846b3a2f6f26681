package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/cirrus/pkg/types"
)

// Defaults
const (
	DefaultSchedulerName   = "custom-scheduling"
	DefaultNamespace       = "default"
	DefaultPollInterval    = 10 * time.Second
	DefaultErrorBackoff    = 5 * time.Second
	DefaultRefreshInterval = 10 * time.Minute
	DefaultHTTPAddr        = ":8080"
	DefaultGRPCAddr        = ":9090"
)

// Store backends for the persisted pricing file
const (
	StoreJSON = "json"
	StoreBolt = "bolt"
)

// Provisioner drivers
const (
	DriverNone    = "none"
	DriverGCP     = "gcp"
	DriverLibvirt = "libvirt"
)

// Config is the complete cirrus configuration
type Config struct {
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Kubernetes  KubernetesConfig  `yaml:"kubernetes"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Provisioner ProvisionerConfig `yaml:"provisioner"`
	API         APIConfig         `yaml:"api"`
	Log         LogConfig         `yaml:"log"`
}

// SchedulerConfig controls pending pod detection and cycle pacing
type SchedulerConfig struct {
	Name         string        `yaml:"name"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"pollInterval"`
	ErrorBackoff time.Duration `yaml:"errorBackoff"`
}

// KubernetesConfig locates the cluster
type KubernetesConfig struct {
	Kubeconfig        string   `yaml:"kubeconfig"`
	ControlPlaneNames []string `yaml:"controlPlaneNames"`
}

// PricingConfig selects pricing sources and where their data is persisted
type PricingConfig struct {
	Providers       []types.Provider    `yaml:"providers"`
	RefreshInterval time.Duration       `yaml:"refreshInterval"`
	Store           StoreConfig         `yaml:"store"`
	FlavorsFile     string              `yaml:"flavorsFile"`
	GCP             GCPConfig           `yaml:"gcp"`
	AWS             AWSConfig           `yaml:"aws"`
	Static          []types.MachineType `yaml:"static"`
}

// StoreConfig selects the pricing file backend
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// GCPConfig is shared by the GCP pricing source and compute driver
type GCPConfig struct {
	Project         string `yaml:"project"`
	Region          string `yaml:"region"`
	Zone            string `yaml:"zone"`
	CredentialsFile string `yaml:"credentialsFile"`
	Image           string `yaml:"image"`
	Network         string `yaml:"network"`
	DiskSizeGB      int64  `yaml:"diskSizeGB"`
}

// AWSConfig configures the AWS pricing source
type AWSConfig struct {
	Region string `yaml:"region"`
}

// LibvirtConfig configures the libvirt compute driver
type LibvirtConfig struct {
	URI        string `yaml:"uri"`
	BaseImage  string `yaml:"baseImage"`
	ImageDir   string `yaml:"imageDir"`
	Network    string `yaml:"network"`
	DiskSizeGB int64  `yaml:"diskSizeGB"`
}

// SSHConfig configures node bootstrap over SSH
type SSHConfig struct {
	User           string        `yaml:"user"`
	KeyFile        string        `yaml:"keyFile"`
	KnownHostsFile string        `yaml:"knownHostsFile"` // empty accepts any host key
	Port           int           `yaml:"port"`
	Retries        int           `yaml:"retries"`
	RetryInterval  time.Duration `yaml:"retryInterval"`
}

// ProvisionerConfig controls how new nodes are created and joined
type ProvisionerConfig struct {
	Driver            string        `yaml:"driver"`
	NamePrefix        string        `yaml:"namePrefix"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	RunningTimeout    time.Duration `yaml:"runningTimeout"`
	JoinTimeout       time.Duration `yaml:"joinTimeout"`
	BootstrapCommands []string      `yaml:"bootstrapCommands"`
	SSH               SSHConfig     `yaml:"ssh"`
	Libvirt           LibvirtConfig `yaml:"libvirt"`
}

// APIConfig holds listen addresses for the HTTP and gRPC servers
type APIConfig struct {
	HTTPAddr string `yaml:"httpAddr"`
	GRPCAddr string `yaml:"grpcAddr"`
}

// LogConfig controls log output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a configuration with every default applied
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Name:         DefaultSchedulerName,
			Namespace:    DefaultNamespace,
			PollInterval: DefaultPollInterval,
			ErrorBackoff: DefaultErrorBackoff,
		},
		Kubernetes: KubernetesConfig{
			ControlPlaneNames: []string{"master"},
		},
		Pricing: PricingConfig{
			Providers:       []types.Provider{types.ProviderGCP},
			RefreshInterval: DefaultRefreshInterval,
			Store: StoreConfig{
				Backend: StoreJSON,
				Path:    "data/pricing.json",
			},
			GCP: GCPConfig{
				Region:     "australia-southeast1",
				Zone:       "australia-southeast1-b",
				Image:      "projects/ubuntu-os-cloud/global/images/family/ubuntu-2204-lts",
				Network:    "global/networks/default",
				DiskSizeGB: 20,
			},
			AWS: AWSConfig{
				Region: "us-east-1",
			},
		},
		Provisioner: ProvisionerConfig{
			Driver:         DriverNone,
			NamePrefix:     "node",
			PollInterval:   5 * time.Second,
			RunningTimeout: 5 * time.Minute,
			JoinTimeout:    10 * time.Minute,
			SSH: SSHConfig{
				User:          "ubuntu",
				Port:          22,
				Retries:       10,
				RetryInterval: 10 * time.Second,
			},
			Libvirt: LibvirtConfig{
				URI:        "qemu:///system",
				ImageDir:   "/var/lib/libvirt/images",
				Network:    "default",
				DiskSizeGB: 20,
			},
		},
		API: APIConfig{
			HTTPAddr: DefaultHTTPAddr,
			GRPCAddr: DefaultGRPCAddr,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path (if any) over the defaults, applies
// CIRRUS_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CIRRUS_* environment variables
func (c *Config) ApplyEnv() error {
	c.Scheduler.Name = env("CIRRUS_SCHEDULER_NAME", c.Scheduler.Name)
	c.Scheduler.Namespace = env("CIRRUS_NAMESPACE", c.Scheduler.Namespace)
	c.Kubernetes.Kubeconfig = env("CIRRUS_KUBECONFIG", c.Kubernetes.Kubeconfig)
	c.Pricing.Store.Backend = env("CIRRUS_PRICING_STORE", c.Pricing.Store.Backend)
	c.Pricing.Store.Path = env("CIRRUS_PRICING_PATH", c.Pricing.Store.Path)
	c.Pricing.FlavorsFile = env("CIRRUS_FLAVORS_FILE", c.Pricing.FlavorsFile)
	c.Pricing.GCP.Project = env("CIRRUS_GCP_PROJECT", c.Pricing.GCP.Project)
	c.Pricing.GCP.Region = env("CIRRUS_GCP_REGION", c.Pricing.GCP.Region)
	c.Pricing.GCP.Zone = env("CIRRUS_GCP_ZONE", c.Pricing.GCP.Zone)
	c.Pricing.GCP.CredentialsFile = env("CIRRUS_GCP_CREDENTIALS", c.Pricing.GCP.CredentialsFile)
	c.Pricing.AWS.Region = env("CIRRUS_AWS_REGION", c.Pricing.AWS.Region)
	c.Provisioner.Driver = env("CIRRUS_PROVISIONER_DRIVER", c.Provisioner.Driver)
	c.Provisioner.SSH.User = env("CIRRUS_SSH_USER", c.Provisioner.SSH.User)
	c.Provisioner.SSH.KeyFile = env("CIRRUS_SSH_KEY_FILE", c.Provisioner.SSH.KeyFile)
	c.Provisioner.Libvirt.URI = env("CIRRUS_LIBVIRT_URI", c.Provisioner.Libvirt.URI)
	c.API.HTTPAddr = env("CIRRUS_HTTP_ADDR", c.API.HTTPAddr)
	c.API.GRPCAddr = env("CIRRUS_GRPC_ADDR", c.API.GRPCAddr)
	c.Log.Level = env("CIRRUS_LOG_LEVEL", c.Log.Level)

	if v := env("CIRRUS_PRICING_PROVIDERS", ""); v != "" {
		c.Pricing.Providers = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Pricing.Providers = append(c.Pricing.Providers, types.Provider(strings.ToLower(p)))
			}
		}
	}

	var err error
	if c.Scheduler.PollInterval, err = envDuration("CIRRUS_POLL_INTERVAL", c.Scheduler.PollInterval); err != nil {
		return err
	}
	if c.Pricing.RefreshInterval, err = envDuration("CIRRUS_PRICING_REFRESH_INTERVAL", c.Pricing.RefreshInterval); err != nil {
		return err
	}
	if c.Log.JSON, err = envBool("CIRRUS_LOG_JSON", c.Log.JSON); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if strings.TrimSpace(c.Scheduler.Name) == "" {
		return errors.New("scheduler.name is required")
	}
	if c.Scheduler.PollInterval <= 0 {
		return errors.New("scheduler.pollInterval must be > 0")
	}
	if c.Scheduler.ErrorBackoff <= 0 {
		return errors.New("scheduler.errorBackoff must be > 0")
	}
	if c.Pricing.RefreshInterval <= 0 {
		return errors.New("pricing.refreshInterval must be > 0")
	}
	if len(c.Pricing.Providers) == 0 {
		return errors.New("pricing.providers must name at least one provider")
	}
	for _, p := range c.Pricing.Providers {
		switch p {
		case types.ProviderGCP:
			if c.Pricing.GCP.Project == "" {
				return errors.New("pricing.gcp.project is required for the gcp provider")
			}
			if c.Pricing.GCP.Region == "" || c.Pricing.GCP.Zone == "" {
				return errors.New("pricing.gcp.region and pricing.gcp.zone are required for the gcp provider")
			}
		case types.ProviderAWS:
			if c.Pricing.AWS.Region == "" {
				return errors.New("pricing.aws.region is required for the aws provider")
			}
		case types.ProviderStatic:
			if len(c.Pricing.Static) == 0 {
				return errors.New("pricing.static must list machine types for the static provider")
			}
			for _, mt := range c.Pricing.Static {
				if err := mt.Validate(); err != nil {
					return fmt.Errorf("pricing.static: %w", err)
				}
			}
		default:
			return fmt.Errorf("unsupported pricing provider %q", p)
		}
	}
	switch c.Pricing.Store.Backend {
	case StoreJSON, StoreBolt:
	default:
		return fmt.Errorf("unsupported pricing store backend %q", c.Pricing.Store.Backend)
	}
	if c.Pricing.Store.Path == "" {
		return errors.New("pricing.store.path is required")
	}
	switch c.Provisioner.Driver {
	case DriverNone:
	case DriverGCP:
		if c.Pricing.GCP.Project == "" || c.Pricing.GCP.Zone == "" {
			return errors.New("pricing.gcp.project and pricing.gcp.zone are required for the gcp driver")
		}
		if !slices.Contains(c.Pricing.Providers, types.ProviderGCP) {
			return errors.New("the gcp driver needs gcp in pricing.providers")
		}
	case DriverLibvirt:
		if c.Provisioner.Libvirt.URI == "" || c.Provisioner.Libvirt.BaseImage == "" {
			return errors.New("provisioner.libvirt.uri and provisioner.libvirt.baseImage are required for the libvirt driver")
		}
	default:
		return fmt.Errorf("unsupported provisioner driver %q", c.Provisioner.Driver)
	}
	if c.Provisioner.Driver != DriverNone {
		if c.Provisioner.NamePrefix == "" {
			return errors.New("provisioner.namePrefix is required")
		}
		if c.Provisioner.PollInterval <= 0 || c.Provisioner.RunningTimeout <= 0 || c.Provisioner.JoinTimeout <= 0 {
			return errors.New("provisioner intervals and timeouts must be > 0")
		}
		if c.Provisioner.SSH.Port <= 0 || c.Provisioner.SSH.Retries <= 0 {
			return errors.New("provisioner.ssh.port and provisioner.ssh.retries must be > 0")
		}
	}
	return nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := env(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
