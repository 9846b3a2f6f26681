package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cirrus/pkg/types"
)

func validConfig() Config {
	cfg := Default()
	cfg.Pricing.GCP.Project = "demo-project"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "custom-scheduling", cfg.Scheduler.Name)
	assert.Equal(t, "default", cfg.Scheduler.Namespace)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ErrorBackoff)
	assert.Equal(t, 10*time.Minute, cfg.Pricing.RefreshInterval)
	assert.Equal(t, StoreJSON, cfg.Pricing.Store.Backend)
	assert.Equal(t, []string{"master"}, cfg.Kubernetes.ControlPlaneNames)
	assert.Equal(t, 10, cfg.Provisioner.SSH.Retries)
	assert.Equal(t, 10*time.Second, cfg.Provisioner.SSH.RetryInterval)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cirrus.yaml")
	data := `
scheduler:
  name: cost-aware
  pollInterval: 30s
pricing:
  providers: [static]
  refreshInterval: 1h
  store:
    backend: bolt
    path: /tmp/pricing.db
  static:
    - name: small
      cpu: 2
      ram: 4
      price: 0.1
    - name: large
      cpu: 8
      ram: 32
      price: 0.4
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cost-aware", cfg.Scheduler.Name)
	assert.Equal(t, "default", cfg.Scheduler.Namespace, "unset fields keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, time.Hour, cfg.Pricing.RefreshInterval)
	assert.Equal(t, StoreBolt, cfg.Pricing.Store.Backend)
	assert.Equal(t, []types.Provider{types.ProviderStatic}, cfg.Pricing.Providers)
	require.Len(t, cfg.Pricing.Static, 2)
	assert.Equal(t, 32.0, cfg.Pricing.Static[1].RAM)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CIRRUS_SCHEDULER_NAME", "env-sched")
	t.Setenv("CIRRUS_POLL_INTERVAL", "15s")
	t.Setenv("CIRRUS_PRICING_PROVIDERS", "GCP, aws")
	t.Setenv("CIRRUS_LOG_JSON", "true")

	cfg := validConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "env-sched", cfg.Scheduler.Name)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, []types.Provider{types.ProviderGCP, types.ProviderAWS}, cfg.Pricing.Providers)
	assert.True(t, cfg.Log.JSON)
}

func TestApplyEnvInvalidDuration(t *testing.T) {
	t.Setenv("CIRRUS_POLL_INTERVAL", "soon")

	cfg := validConfig()
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty scheduler name", mutate: func(c *Config) { c.Scheduler.Name = " " }, wantErr: true},
		{name: "zero poll interval", mutate: func(c *Config) { c.Scheduler.PollInterval = 0 }, wantErr: true},
		{name: "no providers", mutate: func(c *Config) { c.Pricing.Providers = nil }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Pricing.Providers = []types.Provider{"azure"} }, wantErr: true},
		{name: "gcp without project", mutate: func(c *Config) { c.Pricing.GCP.Project = "" }, wantErr: true},
		{name: "static without machine types", mutate: func(c *Config) {
			c.Pricing.Providers = []types.Provider{types.ProviderStatic}
		}, wantErr: true},
		{name: "static with negative price", mutate: func(c *Config) {
			c.Pricing.Providers = []types.Provider{types.ProviderStatic}
			c.Pricing.Static = []types.MachineType{{Name: "x", CPU: 1, RAM: 1, Price: -1}}
		}, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Pricing.Store.Backend = "redis" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Provisioner.Driver = "vsphere" }, wantErr: true},
		{name: "gcp driver", mutate: func(c *Config) { c.Provisioner.Driver = DriverGCP }},
		{name: "gcp driver with mixed providers", mutate: func(c *Config) {
			c.Provisioner.Driver = DriverGCP
			c.Pricing.Providers = []types.Provider{types.ProviderGCP, types.ProviderAWS}
		}},
		{name: "gcp driver without gcp pricing", mutate: func(c *Config) {
			c.Provisioner.Driver = DriverGCP
			c.Pricing.Providers = []types.Provider{types.ProviderAWS}
		}, wantErr: true},
		{name: "libvirt driver without image", mutate: func(c *Config) { c.Provisioner.Driver = DriverLibvirt }, wantErr: true},
		{name: "driver with zero ssh retries", mutate: func(c *Config) {
			c.Provisioner.Driver = DriverGCP
			c.Provisioner.SSH.Retries = 0
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
