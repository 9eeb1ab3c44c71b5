package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/confmod/confmod/pkg/config"
)

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <object>...",
		Short: "Import seed config objects into the store",
		Long: `Evaluate CUE seed files from the seed directory and store the results
as config objects. Objects that already exist are left untouched, so
re-running an import is always safe.`,
		Example: `  # Import app.server from seeds/app.server.cue
  confmod import app.server

  # Import several objects at once
  confmod import app.server app.logging net.firewall`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			importer := config.NewSeedImporter(rt.store, seedDir, rt.logger)
			for _, name := range args {
				if err := importer.ImportObject(ctx, name); err != nil {
					return err
				}
				fmt.Printf("imported %s\n", name)
			}
			return nil
		},
	}

	return cmd
}
