package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Applier executes modification definitions against the config store.
// Global actions run once per definition before any per-object work; each
// touched object is fully computed in memory and persisted in a single
// write, so a crash mid-definition leaves untouched objects intact and the
// definition unmarked for retry.
type Applier struct {
	store     Store
	installer Installer
	importer  Importer
	logger    zerolog.Logger
}

// ApplyResult summarizes the application of one definition.
type ApplyResult struct {
	// Objects lists the config objects that were written.
	Objects []string `json:"objects,omitempty"`

	// Warnings counts change operations whose target path was absent. A
	// warning does not abort the definition; the partial effect is accepted
	// and the definition is still marked applied.
	Warnings int `json:"warnings"`
}

// NewApplier creates an applier. installer and importer may be nil when the
// deployment has no global-action collaborators; definitions carrying global
// actions then fail with a permanent error.
func NewApplier(store Store, installer Installer, importer Importer, logger zerolog.Logger) *Applier {
	return &Applier{
		store:     store,
		installer: installer,
		importer:  importer,
		logger:    logger.With().Str("component", "applier").Logger(),
	}
}

// ApplyDefinition executes one definition: global actions first, then every
// item. All item results are computed before the first persist; persistence
// is per-object atomic. An error means the definition must not be marked.
func (a *Applier) ApplyDefinition(ctx context.Context, def *ModificationDefinition) (*ApplyResult, error) {
	result := &ApplyResult{}

	if err := a.runGlobalActions(ctx, def); err != nil {
		return nil, err
	}

	// Deterministic item order; cross-definition ordering in a batch remains
	// unspecified.
	names := make([]string, 0, len(def.Items))
	for name := range def.Items {
		names = append(names, name)
	}
	sort.Strings(names)

	computed := make(map[string]ConfigTree, len(names))
	for _, name := range names {
		update := def.Items[name]
		if update.IsEmpty() {
			continue
		}

		target, err := a.store.GetObject(ctx, name)
		if err != nil {
			return nil, NewPermanentError("target config object not found", err).
				WithCode(ErrCodeNotFound).WithDefinition(def.ID).WithObject(name)
		}

		patched, warnings := ApplyUpdate(update, target)
		result.Warnings += warnings
		computed[name] = patched

		if warnings > 0 {
			a.logger.Warn().
				Str("definition", def.ID).
				Str("object", name).
				Int("warnings", warnings).
				Msg("change paths absent in target")
		}
	}

	for _, name := range names {
		patched, ok := computed[name]
		if !ok {
			continue
		}
		if err := a.store.PutObject(ctx, name, patched); err != nil {
			return nil, fmt.Errorf("failed to persist config object %s: %w", name, err)
		}
		result.Objects = append(result.Objects, name)
	}

	a.logger.Debug().
		Str("definition", def.ID).
		Int("objects", len(result.Objects)).
		Int("warnings", result.Warnings).
		Msg("definition applied")

	return result, nil
}

func (a *Applier) runGlobalActions(ctx context.Context, def *ModificationDefinition) error {
	if def.Global.IsEmpty() {
		return nil
	}

	for _, id := range def.Global.InstallComponents {
		if a.installer == nil {
			return NewPermanentError("no installer configured for install action", nil).
				WithCode(ErrCodeValidation).WithDefinition(def.ID)
		}
		if err := a.installer.InstallComponent(ctx, id); err != nil {
			return fmt.Errorf("failed to install component %s: %w", id, err)
		}
		a.logger.Info().Str("definition", def.ID).Str("install", id).Msg("component installed")
	}

	for _, name := range def.Global.ImportObjects {
		if a.importer == nil {
			return NewPermanentError("no importer configured for import action", nil).
				WithCode(ErrCodeValidation).WithDefinition(def.ID)
		}
		if err := a.importer.ImportObject(ctx, name); err != nil {
			return fmt.Errorf("failed to import config object %s: %w", name, err)
		}
		a.logger.Info().Str("definition", def.ID).Str("import", name).Msg("config object imported")
	}

	return nil
}

// ApplyUpdate applies an ItemUpdate to a config tree and returns the
// patched tree plus the number of change warnings. The input tree is not
// mutated.
func ApplyUpdate(update *ItemUpdate, target ConfigTree) (ConfigTree, int) {
	patched, _ := cloneValue(target).(map[string]any)
	if patched == nil {
		patched = make(map[string]any)
	}
	if update.IsEmpty() {
		return patched, 0
	}

	applyAdd(patched, update.Add)
	warnings := applyChange(patched, update.Change)
	applyDelete(patched, update.Delete)
	return patched, warnings
}

// applyAdd merges subtrees into target, creating intermediate maps as
// needed. List values extend the existing list, preserving the insertion
// order of the added elements.
func applyAdd(target map[string]any, add map[string]any) {
	for key, val := range add {
		if valMap, ok := val.(map[string]any); ok {
			if targetMap, ok := target[key].(map[string]any); ok {
				applyAdd(targetMap, valMap)
				continue
			}
		}
		if valList, ok := val.([]any); ok {
			if targetList, ok := target[key].([]any); ok {
				for _, elem := range valList {
					targetList = append(targetList, cloneValue(elem))
				}
				target[key] = targetList
				continue
			}
		}
		target[key] = cloneValue(val)
	}
}

// applyChange overwrites existing paths. An absent path counts a warning
// and is skipped; the rest of the update still applies.
func applyChange(target map[string]any, change map[string]any) int {
	warnings := 0
	for key, val := range change {
		if valMap, ok := val.(map[string]any); ok {
			if targetMap, ok := target[key].(map[string]any); ok {
				warnings += applyChange(targetMap, valMap)
				continue
			}
		}
		if _, ok := target[key]; !ok {
			warnings++
			continue
		}
		target[key] = cloneValue(val)
	}
	return warnings
}

// applyDelete removes paths. Empty-map markers delete the key outright;
// non-empty maps recurse; lists remove matching elements. Absent paths are
// a no-op.
func applyDelete(target map[string]any, del map[string]any) {
	for key, val := range del {
		switch marker := val.(type) {
		case map[string]any:
			if len(marker) == 0 {
				delete(target, key)
				continue
			}
			if targetMap, ok := target[key].(map[string]any); ok {
				applyDelete(targetMap, marker)
			}
		case []any:
			if targetList, ok := target[key].([]any); ok {
				target[key] = removeElements(targetList, marker)
			}
		default:
			delete(target, key)
		}
	}
}

func removeElements(list []any, remove []any) []any {
	kept := make([]any, 0, len(list))
	for _, elem := range list {
		if !containsElement(remove, elem) {
			kept = append(kept, elem)
		}
	}
	return kept
}

// cloneValue deep-copies a config value so patched trees never alias the
// definition or the store's cached state.
func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		clone := make(map[string]any, len(v))
		for k, elem := range v {
			clone[k] = cloneValue(elem)
		}
		return clone
	case []any:
		clone := make([]any, len(v))
		for i, elem := range v {
			clone[i] = cloneValue(elem)
		}
		return clone
	default:
		return v
	}
}
