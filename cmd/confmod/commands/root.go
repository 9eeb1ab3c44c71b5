package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbPath        string
	registryDir   string
	seedDir       string
	policyDir     string
	selfComponent string
	logLevel      string
	logFormat     string
	traceExporter string
	traceEndpoint string
	disablePolicy bool
	jsonOutput    bool

	buildVersion string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "confmod",
		Short: "confmod - Configuration Modification Engine",
		Long: `confmod applies declarative configuration modifications contributed by
installed components to a store of named configuration objects.

Features:
  - Structural diffing of configuration trees
  - At-most-once application tracked in a persistent ledger
  - Dependency gating with automatic deferral and retry
  - Declarative YAML and procedural Starlark definition files
  - CUE seed imports for new configuration objects
  - Policy enforcement via OPA`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "confmod.db", "path to the config object database")
	rootCmd.PersistentFlags().StringVar(&registryDir, "registry", "components", "component registry directory")
	rootCmd.PersistentFlags().StringVar(&seedDir, "seeds", "seeds", "directory of CUE seed objects")
	rootCmd.PersistentFlags().StringVar(&policyDir, "policies", "", "directory of custom .rego policies")
	rootCmd.PersistentFlags().StringVar(&selfComponent, "self", "", "component id treated as the engine's own")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP gRPC endpoint for traces")
	rootCmd.PersistentFlags().BoolVar(&disablePolicy, "no-policy", false, "disable policy evaluation")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newPreUpgradeCommand())
	rootCmd.AddCommand(newDiffCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
