// Package config loads modification definitions from component
// directories: declarative YAML files, procedural Starlark generators, and
// CUE seed objects for the import action.
package config

import (
	"fmt"

	"github.com/confmod/confmod/pkg/engine"
)

// DefinitionFile is the on-disk YAML schema of a modification definition.
// The definition id is not part of the file; it derives from the component
// id and the filename.
type DefinitionFile struct {
	// Requires gates when the definition may run.
	Requires RequiresBlock `yaml:"requires,omitempty"`

	// Items maps config object names to the patch applied to each.
	Items map[string]ItemBlock `yaml:"items,omitempty" validate:"dive,keys,required,endkeys"`

	// Global carries file-level actions run once before the items.
	Global *GlobalBlock `yaml:"global,omitempty"`
}

// RequiresBlock names the definition's dependencies.
type RequiresBlock struct {
	Modules []string `yaml:"modules,omitempty" validate:"dive,required"`
	Config  []string `yaml:"config,omitempty" validate:"dive,required"`
}

// ItemBlock is one per-object patch.
type ItemBlock struct {
	Add    map[string]any `yaml:"add,omitempty"`
	Change map[string]any `yaml:"change,omitempty"`
	Delete map[string]any `yaml:"delete,omitempty"`
}

// GlobalBlock is the file-level action list.
type GlobalBlock struct {
	Install []string `yaml:"install,omitempty" validate:"dive,required"`
	Import  []string `yaml:"import,omitempty" validate:"dive,required"`
}

// ToDefinition converts the file schema into an engine definition. All
// trees are normalized to JSON shape so values compare equal to what the
// store returns.
func (f *DefinitionFile) ToDefinition(id, component string) (*engine.ModificationDefinition, error) {
	def := &engine.ModificationDefinition{
		ID:        id,
		Component: component,
		Dependencies: engine.DependencySet{
			Components:    f.Requires.Modules,
			ConfigObjects: f.Requires.Config,
		},
		Items: make(map[string]*engine.ItemUpdate, len(f.Items)),
	}

	for name, item := range f.Items {
		update := &engine.ItemUpdate{}
		var err error
		if update.Add, err = normalizeMap(item.Add); err != nil {
			return nil, fmt.Errorf("item %s add: %w", name, err)
		}
		if update.Change, err = normalizeMap(item.Change); err != nil {
			return nil, fmt.Errorf("item %s change: %w", name, err)
		}
		if update.Delete, err = normalizeMap(item.Delete); err != nil {
			return nil, fmt.Errorf("item %s delete: %w", name, err)
		}
		def.Items[name] = update
	}

	if f.Global != nil {
		def.Global = &engine.GlobalActions{
			InstallComponents: f.Global.Install,
			ImportObjects:     f.Global.Import,
		}
	}

	return def, nil
}

// NormalizeTree rewrites a decoded tree into JSON shape: string-keyed
// maps, []any lists, float64 numbers. YAML and Starlark decode integers as
// int types; left as-is they would never compare equal to stored values.
func NormalizeTree(tree map[string]any) (engine.ConfigTree, error) {
	return normalizeMap(tree)
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	normalized, err := normalizeValue(m)
	if err != nil {
		return nil, err
	}
	return normalized.(map[string]any), nil
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case float32:
		return float64(val), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			normalized, err := normalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = normalized
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string map key %v", k)
			}
			normalized, err := normalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[key] = normalized
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			normalized, err := normalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported config value type %T", v)
	}
}
