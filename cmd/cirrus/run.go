package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/cirrus/pkg/api"
	"github.com/cuemby/cirrus/pkg/binder"
	"github.com/cuemby/cirrus/pkg/events"
	"github.com/cuemby/cirrus/pkg/log"
	"github.com/cuemby/cirrus/pkg/metrics"
	"github.com/cuemby/cirrus/pkg/monitor"
	"github.com/cuemby/cirrus/pkg/pricing"
	"github.com/cuemby/cirrus/pkg/scheduler"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler",
	Long: `Run the scheduler until interrupted.

Cirrus polls for pending pods that name its scheduler, plans placements
against the current pricing table, provisions the nodes the plan needs and
binds the pods. Pricing is refreshed in the background.

Examples:
  # Run with a config file
  cirrus run -c /etc/cirrus/config.yaml

  # Plan only against existing nodes
  CIRRUS_PROVISIONER_DRIVER=none cirrus run`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var done cleanup
	defer done.run(logger)

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	done.add(func() error {
		broker.Unsubscribe(sub)
		broker.Stop()
		return nil
	})
	go logEvents(sub, log.WithComponent(logger, "events"))

	// Pricing
	catalog, err := buildCatalog(ctx, cfg, logger, &done)
	if err != nil {
		return err
	}
	catalog.SetPublisher(broker)
	if err := catalog.Warm(ctx); err != nil {
		return err
	}
	if err := catalog.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial pricing refresh incomplete")
	}
	refresher := pricing.NewRefresher(catalog, cfg.Pricing.RefreshInterval, logger)
	refresher.Start()
	done.add(func() error { refresher.Stop(); return nil })

	// Cluster
	client, err := kubeClient(cfg.Kubernetes, logger)
	if err != nil {
		return err
	}
	prov, err := buildProvisioner(ctx, cfg, client, logger, &done)
	if err != nil {
		return err
	}

	mon := monitor.New(client, monitor.Config{
		SchedulerName:     cfg.Scheduler.Name,
		Namespace:         cfg.Scheduler.Namespace,
		ControlPlaneNames: cfg.Kubernetes.ControlPlaneNames,
	}, catalog.Cache(), log.WithComponent(logger, "monitor"))

	deps := scheduler.Deps{
		Monitor:   mon,
		Pricing:   catalog.Cache(),
		Binder:    binder.New(client, log.WithComponent(logger, "binder")),
		Publisher: broker,
	}
	if prov != nil {
		mon.SetAddressResolver(prov)
		deps.Provisioner = prov
	}

	sched := scheduler.New(deps, scheduler.Config{
		SchedulerName: cfg.Scheduler.Name,
		Namespace:     cfg.Scheduler.Namespace,
	}, log.WithComponent(logger, "scheduler"))
	metrics.UpdateComponent(metrics.ComponentScheduler, true, "")

	poller := monitor.NewPoller(mon, sched.Trigger, cfg.Scheduler.PollInterval, cfg.Scheduler.ErrorBackoff,
		log.WithComponent(logger, "poller"))
	poller.IgnoreErrors(scheduler.ErrCycleInFlight)

	// API
	apiLogger := log.WithComponent(logger, "api")
	httpServer := api.NewHTTPServer(sched, catalog.Cache(), apiLogger)
	grpcServer := api.NewServer(apiLogger)

	errCh := make(chan error, 2)
	go func() {
		if err := httpServer.Start(cfg.API.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("HTTP API error: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Start(cfg.API.GRPCAddr); err != nil {
			errCh <- fmt.Errorf("gRPC API error: %w", err)
		}
	}()
	metrics.UpdateComponent(metrics.ComponentAPI, true, "")

	poller.Start()
	logger.Info().
		Str("scheduler", cfg.Scheduler.Name).
		Str("namespace", cfg.Scheduler.Namespace).
		Str("driver", cfg.Provisioner.Driver).
		Dur("poll_interval", cfg.Scheduler.PollInterval).
		Msg("Cirrus is running")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down after API failure")
	}

	poller.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP API shutdown failed")
	}
	grpcServer.Stop()

	logger.Info().Msg("Shutdown complete")
	return runErr
}

// logEvents writes every published event to the log at debug level
func logEvents(sub events.Subscriber, logger zerolog.Logger) {
	for ev := range sub {
		e := logger.Debug().
			Str("event", string(ev.Type)).
			Str("cycle_id", ev.CycleID)
		for k, v := range ev.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(ev.Message)
	}
}
