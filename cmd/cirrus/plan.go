package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/cirrus/pkg/binder"
	"github.com/cuemby/cirrus/pkg/monitor"
	"github.com/cuemby/cirrus/pkg/optimizer"
	"github.com/cuemby/cirrus/pkg/scheduler"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the placement plan for current pending pods",
	Long: `Compute a placement plan for the pods currently pending without binding
pods or creating nodes.

Examples:
  # Plan against the persisted pricing table
  cirrus plan -c config.yaml

  # Refresh prices first and print JSON
  cirrus plan --refresh -o json`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().Bool("refresh", false, "Refresh pricing from providers before planning")
	planCmd.Flags().StringP("output", "o", "table", "Output format (table, json)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	refresh, _ := cmd.Flags().GetBool("refresh")
	ctx := cmd.Context()

	var done cleanup
	defer done.run(logger)

	catalog, err := buildCatalog(ctx, cfg, logger, &done)
	if err != nil {
		return err
	}
	if err := catalog.Warm(ctx); err != nil {
		return err
	}
	if refresh {
		if err := catalog.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("Pricing refresh incomplete")
		}
	}

	client, err := kubeClient(cfg.Kubernetes, logger)
	if err != nil {
		return err
	}
	mon := monitor.New(client, monitor.Config{
		SchedulerName:     cfg.Scheduler.Name,
		Namespace:         cfg.Scheduler.Namespace,
		ControlPlaneNames: cfg.Kubernetes.ControlPlaneNames,
	}, catalog.Cache(), logger)

	sched := scheduler.New(scheduler.Deps{
		Monitor: mon,
		Pricing: catalog.Cache(),
		Binder:  binder.New(client, logger),
	}, scheduler.Config{
		SchedulerName: cfg.Scheduler.Name,
		Namespace:     cfg.Scheduler.Namespace,
	}, logger)

	plan, err := sched.Plan(ctx)
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), optimizer.Summarize(plan), output)
}

func printSummary(w io.Writer, s optimizer.Summary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "table":
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	if s.PlacedPods == 0 && len(s.Unplaced) == 0 {
		fmt.Fprintln(w, "No pending pods")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tMACHINE TYPE\tNEW\tPODS\tPENDING\tCPU\tRAM\tPRICE/H")
	for _, n := range s.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%.0f%%\t%.0f%%\t%.4f\n",
			n.Name, n.MachineType, n.New, n.Pods, n.PendingPods, n.CPUUtilization, n.RAMUtilization, n.Price)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nPlaced pods: %d\n", s.PlacedPods)
	fmt.Fprintf(w, "New nodes: %d (%.4f/h)\n", s.NewNodes, s.NewNodesPrice)
	fmt.Fprintf(w, "Total price: %.4f/h\n", s.TotalPrice)
	for _, p := range s.Unplaced {
		fmt.Fprintf(w, "Unplaced: %s\n", p)
	}
	return nil
}
