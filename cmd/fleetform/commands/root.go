// Package commands implements the fleetform CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	inventoryPath string
	limitGroup    string
	parallel      int
	verbose       bool
	metricsListen string
	traceExporter string
	traceEndpoint string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetform",
		Short: "Fleetform - remote host management engine",
		Long: `Fleetform manages fleets of hosts over pluggable transports.

It connects to each inventory host through its configured connector
(ssh, local or docker), executes shell commands, transfers files, and
gathers facts about the machines it manages.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "i", "inventory.yml", "inventory file path")
	rootCmd.PersistentFlags().StringVarP(&limitGroup, "limit", "l", "", "limit operations to hosts in this group")
	rootCmd.PersistentFlags().IntVarP(&parallel, "parallel", "p", 4, "number of hosts operated on concurrently")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "", "enable tracing with this exporter (otlp, stdout)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP collector endpoint for --trace otlp")

	rootCmd.AddCommand(newExecCommand())
	rootCmd.AddCommand(newFactsCommand())
	rootCmd.AddCommand(newUploadCommand())
	rootCmd.AddCommand(newDownloadCommand())

	return rootCmd
}
