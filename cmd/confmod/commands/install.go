package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/confmod/confmod/pkg/engine"
)

func newInstallCommand() *cobra.Command {
	var entityScope bool

	cmd := &cobra.Command{
		Use:   "install <component>",
		Short: "Signal a component installation and run a cycle",
		Long: `Signal that a component has been installed or updated and run one
orchestration cycle: discover all definitions, filter out applied and
unsatisfied ones, apply the rest, and mark them in the ledger.

Installing the engine's own component runs a bootstrap cycle that marks
the satisfied set without applying it, since a fresh install already
ships the end state.`,
		Example: `  # Run a cycle after installing the webui component
  confmod install webui

  # Signal a sub-entity update (no cycle runs)
  confmod install webui --entity`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			scope := engine.ScopeComponent
			if entityScope {
				scope = engine.ScopeEntity
			}

			result, err := rt.tracedCycle(ctx, args[0], func(ctx context.Context) (*engine.CycleResult, error) {
				return rt.orchestrator.HandleInstall(ctx, engine.InstallEvent{
					Component: args[0],
					Scope:     scope,
					Time:      time.Now(),
				})
			})
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Println("sub-entity event, nothing to do")
				return nil
			}
			rt.finishCycle(ctx, result)
			return printCycle(result)
		},
	}

	cmd.Flags().BoolVar(&entityScope, "entity", false, "event covers a sub-entity only")

	return cmd
}

func printCycle(result *engine.CycleResult) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("cycle %s (trigger: %s)\n", result.ID, result.Trigger.Component)
	fmt.Printf("  discovered:      %d\n", result.Discovered)
	fmt.Printf("  already applied: %d\n", result.AlreadyApplied)
	fmt.Printf("  deferred:        %d\n", result.Deferred)
	fmt.Printf("  denied:          %d\n", result.Denied)
	fmt.Printf("  applied:         %d\n", len(result.Applied))
	for _, id := range result.Applied {
		fmt.Printf("    + %s\n", id)
	}
	if len(result.Failed) > 0 {
		fmt.Printf("  failed:          %d\n", len(result.Failed))
		for _, id := range result.Failed {
			fmt.Printf("    ! %s\n", id)
		}
	}
	fmt.Printf("  marked:          %d\n", len(result.Marked))
	if result.Warnings > 0 {
		fmt.Printf("  warnings:        %d\n", result.Warnings)
	}
	fmt.Printf("  duration:        %s\n", result.Duration)
	return nil
}
