package commands

import (
	"github.com/spf13/cobra"
)

func newPreUpgradeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pre-upgrade",
		Short: "Mark satisfied definitions before an engine upgrade",
		Long: `Mark every currently satisfied, unapplied definition in the ledger
without applying it.

Run this immediately before upgrading the engine's own component. The
upgrade ships configuration that already incorporates those
modifications; marking them first prevents the post-upgrade install
cycle from applying them a second time.`,
		Example: `  confmod pre-upgrade && upgrade-confmod && confmod install confmod.core`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.tracedCycle(ctx, "pre-upgrade", rt.orchestrator.PreUpgrade)
			if err != nil {
				return err
			}
			rt.finishCycle(ctx, result)
			return printCycle(result)
		},
	}

	return cmd
}
