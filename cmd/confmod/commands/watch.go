package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/confmod/confmod/pkg/engine"
	"github.com/confmod/confmod/pkg/registry"
	"github.com/confmod/confmod/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the registry and run cycles on changes",
		Long: `Watch the component registry directory and run an orchestration cycle
whenever a component is added or its modification files change. Runs
until interrupted.

With --metrics, cycle and ledger metrics are exposed on a Prometheus
endpoint.`,
		Example: `  # Watch with metrics on :9090
  confmod watch --metrics :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if metricsAddr != "" {
				metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
					Enabled:       true,
					ListenAddress: metricsAddr,
					Path:          "/metrics",
					Namespace:     "confmod",
				})
				if err != nil {
					return err
				}
				if err := metrics.StartMetricsServer(); err != nil {
					return err
				}
				rt.metrics = metrics
			}

			watcher := registry.NewWatcher(rt.registry, rt.logger)
			events, err := watcher.Watch(ctx)
			if err != nil {
				return err
			}

			rt.logger.Info().Str("registry", registryDir).Msg("watching for component changes")
			for event := range events {
				rt.metrics.RecordCycleStarted(event.Component)
				result, err := rt.tracedCycle(ctx, event.Component, func(ctx context.Context) (*engine.CycleResult, error) {
					return rt.orchestrator.HandleInstall(ctx, event)
				})
				if err != nil {
					// Transient trouble must not kill the watch loop; the
					// next event retries everything still unmarked.
					rt.logger.Error().Err(err).Str("trigger", event.Component).Msg("cycle failed")
					continue
				}
				if result == nil {
					continue
				}
				rt.finishCycle(ctx, result)
				for _, id := range result.Applied {
					rt.logger.Info().Str("definition", id).Msg("applied")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "expose Prometheus metrics on this address")

	return cmd
}
