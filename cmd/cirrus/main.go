package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/cirrus/pkg/config"
	"github.com/cuemby/cirrus/pkg/log"
	"github.com/cuemby/cirrus/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cirrus",
	Short: "Cirrus - cost-aware Kubernetes scheduler",
	Long: `Cirrus binds pending pods to the cheapest mix of existing and new nodes.

Pods that name cirrus as their scheduler are packed with a cost-aware best
fit decreasing heuristic. When no existing node can take a pod, cirrus
creates the machine type that keeps the bill lowest and joins it to the
cluster before binding.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Cirrus version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Cirrus version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// setup loads configuration and initializes logging from the persistent flags
func setup(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}

	logger := log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     cmd.ErrOrStderr(),
	})
	metrics.SetVersion(Version)
	return cfg, logger, nil
}
