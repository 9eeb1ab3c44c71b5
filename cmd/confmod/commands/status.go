package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/confmod/confmod/pkg/engine"
)

// statusReport is the JSON shape of the status command's output.
type statusReport struct {
	Components []string              `json:"components"`
	Objects    []string              `json:"objects"`
	Applied    []string              `json:"applied"`
	Pending    []pendingDefinition   `json:"pending,omitempty"`
	Cycles     []*engine.CycleResult `json:"recent_cycles,omitempty"`
}

type pendingDefinition struct {
	ID                string   `json:"id"`
	MissingComponents []string `json:"missing_components,omitempty"`
	MissingObjects    []string `json:"missing_objects,omitempty"`
}

func newStatusCommand() *cobra.Command {
	var cycleLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger, pending definitions, and recent cycles",
		Long: `Show the current state of the engine: active components, stored config
objects, the applied-modifications ledger, definitions waiting on unmet
dependencies, and recent cycle history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			report := &statusReport{}

			if report.Components, err = rt.registry.ActiveComponents(ctx); err != nil {
				return err
			}
			if report.Objects, err = rt.store.ListObjectNames(ctx); err != nil {
				return err
			}

			applied, err := rt.ledger.Get(ctx)
			if err != nil {
				return err
			}
			for id := range applied {
				report.Applied = append(report.Applied, id)
			}
			sort.Strings(report.Applied)

			definitions, err := rt.registry.Definitions(ctx)
			if err != nil {
				return err
			}
			evaluator := engine.NewDependencyEvaluator()
			for _, def := range definitions {
				if _, ok := applied[def.ID]; ok {
					continue
				}
				missingComponents, missingObjects := evaluator.MissingDependencies(def, report.Components, report.Objects)
				if len(missingComponents) == 0 && len(missingObjects) == 0 {
					report.Pending = append(report.Pending, pendingDefinition{ID: def.ID})
					continue
				}
				report.Pending = append(report.Pending, pendingDefinition{
					ID:                def.ID,
					MissingComponents: missingComponents,
					MissingObjects:    missingObjects,
				})
			}
			sort.Slice(report.Pending, func(i, j int) bool {
				return report.Pending[i].ID < report.Pending[j].ID
			})

			if report.Cycles, err = rt.store.ListCycles(ctx, cycleLimit); err != nil {
				return err
			}

			return printStatus(report)
		},
	}

	cmd.Flags().IntVar(&cycleLimit, "cycles", 5, "number of recent cycles to show")

	return cmd
}

func printStatus(report *statusReport) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("components: %d\n", len(report.Components))
	for _, component := range report.Components {
		fmt.Printf("  %s\n", component)
	}
	fmt.Printf("config objects: %d\n", len(report.Objects))
	fmt.Printf("applied modifications: %d\n", len(report.Applied))
	if len(report.Pending) > 0 {
		fmt.Printf("pending modifications: %d\n", len(report.Pending))
		for _, pending := range report.Pending {
			if len(pending.MissingComponents) == 0 && len(pending.MissingObjects) == 0 {
				fmt.Printf("  %s (ready)\n", pending.ID)
				continue
			}
			fmt.Printf("  %s (waiting on", pending.ID)
			for _, id := range pending.MissingComponents {
				fmt.Printf(" module:%s", id)
			}
			for _, name := range pending.MissingObjects {
				fmt.Printf(" config:%s", name)
			}
			fmt.Println(")")
		}
	}
	if len(report.Cycles) > 0 {
		fmt.Printf("recent cycles:\n")
		for _, cycle := range report.Cycles {
			fmt.Printf("  %s trigger=%s applied=%d failed=%d deferred=%d\n",
				cycle.Trigger.Time.Format("2006-01-02 15:04:05"),
				cycle.Trigger.Component,
				len(cycle.Applied), len(cycle.Failed), cycle.Deferred)
		}
	}
	return nil
}
