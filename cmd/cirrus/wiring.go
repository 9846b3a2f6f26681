package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	cloudgcp "github.com/cuemby/cirrus/pkg/cloud/gcp"
	"github.com/cuemby/cirrus/pkg/cloud/libvirt"
	"github.com/cuemby/cirrus/pkg/config"
	"github.com/cuemby/cirrus/pkg/log"
	"github.com/cuemby/cirrus/pkg/pricing"
	awspricing "github.com/cuemby/cirrus/pkg/pricing/aws"
	gcppricing "github.com/cuemby/cirrus/pkg/pricing/gcp"
	"github.com/cuemby/cirrus/pkg/provisioner"
	"github.com/cuemby/cirrus/pkg/storage"
	"github.com/cuemby/cirrus/pkg/types"
)

// cleanup releases resources in reverse order of acquisition
type cleanup []func() error

func (c *cleanup) add(f func() error) {
	*c = append(*c, f)
}

func (c cleanup) run(logger zerolog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn().Err(err).Msg("Cleanup failed")
		}
	}
}

func openStore(cfg config.StoreConfig) (storage.PricingStore, error) {
	switch cfg.Backend {
	case config.StoreBolt:
		return storage.NewBoltStore(cfg.Path)
	case config.StoreJSON:
		return storage.NewFileStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported pricing store backend %q", cfg.Backend)
	}
}

func loadFlavors(path string) (*pricing.FlavorPool, error) {
	if path == "" {
		return nil, nil
	}
	return pricing.LoadFlavorPool(path)
}

// buildSources creates one pricing source per configured provider
func buildSources(ctx context.Context, cfg config.PricingConfig, pool *pricing.FlavorPool, logger zerolog.Logger, done *cleanup) ([]pricing.Source, error) {
	var sources []pricing.Source
	for _, p := range cfg.Providers {
		sourceLogger := logger.With().Str("provider", string(p)).Logger()
		switch p {
		case types.ProviderGCP:
			client, err := gcppricing.NewClient(ctx, cfg.GCP.CredentialsFile)
			if err != nil {
				return nil, err
			}
			done.add(client.Close)
			sources = append(sources, gcppricing.NewSource(client, gcppricing.Config{
				Project: cfg.GCP.Project,
				Region:  cfg.GCP.Region,
				Zone:    cfg.GCP.Zone,
			}, pool, sourceLogger))
		case types.ProviderAWS:
			client, err := awspricing.NewEC2Client(ctx, cfg.AWS.Region)
			if err != nil {
				return nil, err
			}
			sources = append(sources, awspricing.NewSource(client, cfg.AWS.Region, pool, sourceLogger))
		case types.ProviderStatic:
			sources = append(sources, pricing.NewStaticSource(cfg.Static, pool))
		default:
			return nil, fmt.Errorf("unsupported pricing provider %q", p)
		}
	}
	return sources, nil
}

// buildCatalog opens the pricing store and wires every configured source
func buildCatalog(ctx context.Context, cfg config.Config, logger zerolog.Logger, done *cleanup) (*pricing.Catalog, error) {
	store, err := openStore(cfg.Pricing.Store)
	if err != nil {
		return nil, err
	}
	done.add(store.Close)

	pool, err := loadFlavors(cfg.Pricing.FlavorsFile)
	if err != nil {
		return nil, err
	}

	pricingLogger := log.WithComponent(logger, "pricing")
	sources, err := buildSources(ctx, cfg.Pricing, pool, pricingLogger, done)
	if err != nil {
		return nil, err
	}
	return pricing.NewCatalog(store, pricing.NewCache(), pricingLogger, sources...), nil
}

// restConfig uses the configured kubeconfig, then the in-cluster service
// account, then the default kubeconfig location
func restConfig(kubeconfig string, logger zerolog.Logger) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}

	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}
	logger.Debug().Err(err).Msg("In-cluster config not available, trying kubeconfig")

	path := clientcmd.NewDefaultClientConfigLoadingRules().GetDefaultFilename()
	cfg, err = clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("failed to build config from kubeconfig: %w", err)
	}
	return cfg, nil
}

func kubeClient(cfg config.KubernetesConfig, logger zerolog.Logger) (kubernetes.Interface, error) {
	rc, err := restConfig(cfg.Kubeconfig, logger)
	if err != nil {
		return nil, err
	}
	rc.UserAgent = "cirrus/" + Version
	client, err := kubernetes.NewForConfig(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return client, nil
}

func buildDriver(ctx context.Context, cfg config.Config, logger zerolog.Logger, done *cleanup) (provisioner.Driver, error) {
	switch cfg.Provisioner.Driver {
	case config.DriverGCP:
		client, err := cloudgcp.NewClient(ctx, cfg.Pricing.GCP.CredentialsFile)
		if err != nil {
			return nil, err
		}
		done.add(client.Close)
		return cloudgcp.NewDriver(client, cloudgcp.Config{
			Project:    cfg.Pricing.GCP.Project,
			Zone:       cfg.Pricing.GCP.Zone,
			Image:      cfg.Pricing.GCP.Image,
			Network:    cfg.Pricing.GCP.Network,
			DiskSizeGB: cfg.Pricing.GCP.DiskSizeGB,
			Labels:     map[string]string{"managed-by": "cirrus"},
		}, logger), nil
	case config.DriverLibvirt:
		lv := cfg.Provisioner.Libvirt
		conn, err := libvirt.Connect(lv.URI)
		if err != nil {
			return nil, err
		}
		done.add(conn.Disconnect)
		return libvirt.NewDriver(conn, libvirt.Config{
			URI:        lv.URI,
			BaseImage:  lv.BaseImage,
			ImageDir:   lv.ImageDir,
			Network:    lv.Network,
			DiskSizeGB: lv.DiskSizeGB,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provisioner driver %q", cfg.Provisioner.Driver)
	}
}

// buildProvisioner returns nil when provisioning is disabled
func buildProvisioner(ctx context.Context, cfg config.Config, client kubernetes.Interface, logger zerolog.Logger, done *cleanup) (*provisioner.Provisioner, error) {
	if cfg.Provisioner.Driver == config.DriverNone {
		logger.Info().Msg("Provisioning disabled, pods that need new nodes stay pending")
		return nil, nil
	}

	provLogger := log.WithComponent(logger, "provisioner")
	driver, err := buildDriver(ctx, cfg, provLogger, done)
	if err != nil {
		return nil, err
	}

	pc := cfg.Provisioner
	var bootstrapper provisioner.Bootstrapper
	if len(pc.BootstrapCommands) > 0 {
		ssh, err := provisioner.NewSSHBootstrapper(provisioner.SSHConfig{
			User:           pc.SSH.User,
			KeyFile:        pc.SSH.KeyFile,
			KnownHostsFile: pc.SSH.KnownHostsFile,
			Port:           pc.SSH.Port,
			Retries:        pc.SSH.Retries,
			RetryInterval:  pc.SSH.RetryInterval,
		}, provLogger)
		if err != nil {
			return nil, err
		}
		bootstrapper = ssh
	}

	prov := provisioner.New(driver, bootstrapper,
		provisioner.NewKubeNodeWaiter(client, pc.PollInterval, provLogger),
		provisioner.Config{
			NamePrefix:        pc.NamePrefix,
			PollInterval:      pc.PollInterval,
			RunningTimeout:    pc.RunningTimeout,
			JoinTimeout:       pc.JoinTimeout,
			SSHPort:           pc.SSH.Port,
			SSHRetries:        pc.SSH.Retries,
			SSHRetryInterval:  pc.SSH.RetryInterval,
			BootstrapCommands: pc.BootstrapCommands,
		}, provLogger)

	if err := prov.Sync(ctx); err != nil {
		provLogger.Warn().Err(err).Msg("Failed to list existing instances, names are taken from cluster nodes only")
	}
	return prov, nil
}

// closeAll closes every closer, joining their errors
func closeAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
