package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	clusterPath string
	verbose     bool
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "topoplan",
		Short: "Topoplan - Declarative Cluster Topology Orchestrator",
		Long: `Topoplan resolves a declarative cluster topology (node-groups, roles,
instance counts) into concrete machine specifications and converges real
hosts toward it over SSH.

Features:
  - Role catalog with aliases, singletons and per-role ports/phases
  - Topology validation (unknown role sets, singleton conflicts)
  - Bring-up / tear-down diffs with target instance counts
  - Ordered lifecycle phases with parallel host fan-out
  - Dry-run planning and file-watch replanning`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&clusterPath, "cluster", "c", "cluster.yaml", "cluster topology file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newBootCommand())
	rootCmd.AddCommand(newKillCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newLiftCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
