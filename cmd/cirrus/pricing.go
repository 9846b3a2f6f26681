package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/cirrus/pkg/config"
	"github.com/cuemby/cirrus/pkg/storage"
	"github.com/cuemby/cirrus/pkg/types"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Manage the machine type pricing table",
}

var pricingRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Query every provider and persist the pricing table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var done cleanup
		defer done.run(logger)

		catalog, err := buildCatalog(ctx, cfg, logger, &done)
		if err != nil {
			return err
		}
		refreshErr := catalog.Refresh(ctx)

		table := catalog.Cache().Snapshot()
		counts := table.CountByProvider()
		out := cmd.OutOrStdout()
		for _, p := range catalog.Providers() {
			fmt.Fprintf(out, "%-8s %d machine types\n", p, counts[p])
		}
		fmt.Fprintf(out, "Total: %d machine types in %s\n", table.Len(), cfg.Pricing.Store.Path)
		return refreshErr
	},
}

var pricingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted pricing table",
	Long: `Print the persisted pricing table without querying providers.

Examples:
  # Every machine type, cheapest first
  cirrus pricing show --sort price

  # Only AWS, as YAML
  cirrus pricing show --provider aws -o yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		provider, _ := cmd.Flags().GetString("provider")
		sortBy, _ := cmd.Flags().GetString("sort")
		output, _ := cmd.Flags().GetString("output")

		store, err := openStore(cfg.Pricing.Store)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close pricing store")
			}
		}()

		file, err := store.Load()
		if err != nil {
			return err
		}

		var mts []types.MachineType
		if provider != "" {
			mts, err = file.MachineTypes(types.Provider(provider))
			if err != nil {
				return err
			}
		} else {
			mts = file.All()
		}
		if err := sortMachineTypes(mts, sortBy); err != nil {
			return err
		}
		return printMachineTypes(cmd.OutOrStdout(), mts, output)
	},
}

var pricingMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the pricing table to another store backend",
	Long: `Copy every provider's machine types from the configured store to a new
store, for example when moving from the JSON file to bbolt.

Examples:
  # Preview what would be copied
  cirrus pricing migrate --to bolt --dest data/pricing.db --dry-run

  # Copy, then point pricing.store at the new backend
  cirrus pricing migrate --to bolt --dest data/pricing.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		backend, _ := cmd.Flags().GetString("to")
		dest, _ := cmd.Flags().GetString("dest")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		target := config.StoreConfig{Backend: backend, Path: dest}
		if target == cfg.Pricing.Store {
			return fmt.Errorf("destination is the configured store")
		}

		src, err := openStore(cfg.Pricing.Store)
		if err != nil {
			return err
		}
		file, err := src.Load()
		if err != nil {
			_ = src.Close()
			return err
		}

		out := cmd.OutOrStdout()
		if dryRun {
			for p, mts := range file {
				fmt.Fprintf(out, "Would copy %d %s machine types to %s (%s)\n", len(mts), p, dest, backend)
			}
			return src.Close()
		}

		dst, err := openStore(target)
		if err != nil {
			_ = src.Close()
			return err
		}
		defer func() {
			if err := closeAll(src, dst); err != nil {
				logger.Warn().Err(err).Msg("Failed to close pricing stores")
			}
		}()

		if err := migrateStore(file, dst); err != nil {
			return err
		}
		fmt.Fprintf(out, "Copied %d providers to %s (%s)\n", len(file), dest, backend)
		return nil
	},
}

func init() {
	pricingShowCmd.Flags().String("provider", "", "Only show one provider")
	pricingShowCmd.Flags().String("sort", "name", "Sort by name, price, cpu or ram")
	pricingShowCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")

	pricingMigrateCmd.Flags().String("to", config.StoreBolt, "Destination backend (json, bolt)")
	pricingMigrateCmd.Flags().String("dest", "", "Destination path (required)")
	pricingMigrateCmd.Flags().Bool("dry-run", false, "Show what would be copied without writing")
	_ = pricingMigrateCmd.MarkFlagRequired("dest")

	pricingCmd.AddCommand(pricingRefreshCmd)
	pricingCmd.AddCommand(pricingShowCmd)
	pricingCmd.AddCommand(pricingMigrateCmd)
	rootCmd.AddCommand(pricingCmd)
}

// migrateStore writes every provider of file into dst
func migrateStore(file storage.PricingFile, dst storage.PricingStore) error {
	providers := make([]types.Provider, 0, len(file))
	for p := range file {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	for _, p := range providers {
		if err := dst.Save(p, file[p]); err != nil {
			return fmt.Errorf("failed to copy %s: %w", p, err)
		}
	}
	return nil
}

func sortMachineTypes(mts []types.MachineType, by string) error {
	var less func(a, b types.MachineType) bool
	switch by {
	case "name":
		types.SortMachineTypes(mts)
		return nil
	case "price":
		less = func(a, b types.MachineType) bool { return a.Price < b.Price }
	case "cpu":
		less = func(a, b types.MachineType) bool { return a.CPU < b.CPU }
	case "ram":
		less = func(a, b types.MachineType) bool { return a.RAM < b.RAM }
	default:
		return fmt.Errorf("unsupported sort key %q", by)
	}
	types.SortMachineTypes(mts)
	sort.SliceStable(mts, func(i, j int) bool { return less(mts[i], mts[j]) })
	return nil
}

func printMachineTypes(w io.Writer, mts []types.MachineType, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mts)
	case "yaml":
		return yaml.NewEncoder(w).Encode(mts)
	case "table":
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tNAME\tVCPU\tRAM (GiB)\tPRICE/H")
	for _, mt := range mts {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%.4f\n", mt.Provider, mt.Name, mt.CPU, mt.RAM, mt.Price)
	}
	return tw.Flush()
}
