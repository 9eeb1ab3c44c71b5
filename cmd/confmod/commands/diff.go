package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/confmod/confmod/pkg/config"
	"github.com/confmod/confmod/pkg/engine"
)

func newDiffCommand() *cobra.Command {
	var ignoreKeys []string

	cmd := &cobra.Command{
		Use:   "diff <from.yaml> <to.yaml>",
		Short: "Compute the modification between two configuration trees",
		Long: `Compute the structural difference between two configuration files and
print it as a modification item (add/change/delete buckets). The output
can be pasted into a definition file's items section.

Lists compare as sets: element order never produces a difference. Keys
named with --ignore are excluded at the top level only.`,
		Example: `  # What would upgrading this config file change?
  confmod diff current.yaml desired.yaml

  # Ignore the top-level version stamp
  confmod diff current.yaml desired.yaml --ignore version`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := loadTree(args[0])
			if err != nil {
				return err
			}
			to, err := loadTree(args[1])
			if err != nil {
				return err
			}

			update := engine.Diff(from, to, ignoreKeys...)
			if update.IsEmpty() {
				fmt.Println("trees are identical")
				return nil
			}

			out, err := yaml.Marshal(update)
			if err != nil {
				return fmt.Errorf("failed to encode diff: %w", err)
			}
			os.Stdout.Write(out)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ignoreKeys, "ignore", nil, "top-level keys to exclude from the comparison")

	return cmd
}

// loadTree reads a YAML (or JSON, which YAML subsumes) file into a
// normalized config tree.
func loadTree(path string) (engine.ConfigTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	tree, err := config.NormalizeTree(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return tree, nil
}
