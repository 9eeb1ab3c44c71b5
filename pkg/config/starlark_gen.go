package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/confmod/confmod/pkg/engine"
)

// modificationFunction is the global a .star generator must define. It is
// called with no arguments and returns a dict shaped like a YAML
// definition file: requires, items, global.
const modificationFunction = "modification"

// StarlarkGenerator evaluates .star files that compute a modification
// definition procedurally. Scripts run in a sandboxed thread with no
// filesystem or network access and a hard timeout.
type StarlarkGenerator struct {
	timeout time.Duration
}

// NewStarlarkGenerator creates a generator with the given evaluation timeout.
func NewStarlarkGenerator(timeout time.Duration) *StarlarkGenerator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkGenerator{timeout: timeout}
}

// Generate evaluates a generator script and returns the definition it
// produces.
func (g *StarlarkGenerator) Generate(id, component, path string) (*engine.ModificationDefinition, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read generator script: %w", err)
	}

	output, err := g.run(id, component, path, script)
	if err != nil {
		return nil, err
	}

	return definitionFromOutput(id, component, output)
}

func (g *StarlarkGenerator) run(id, component, path string, script []byte) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	resultCh := make(chan map[string]any, 1)
	errCh := make(chan error, 1)

	go func() {
		output, err := g.runSync(id, component, path, script)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- output
		}
	}()

	select {
	case <-ctx.Done():
		return nil, engine.NewPermanentError("generator script timed out", ctx.Err()).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	case err := <-errCh:
		return nil, err
	case output := <-resultCh:
		return output, nil
	}
}

func (g *StarlarkGenerator) runSync(id, component, path string, script []byte) (map[string]any, error) {
	thread := &starlark.Thread{
		Name: "confmod",
		Print: func(_ *starlark.Thread, _ string) {
			// Suppress print for security
		},
	}

	predeclared := starlark.StringDict{
		"struct":    starlarkstruct.Default,
		"component": starlark.String(component),
	}

	globals, err := starlark.ExecFile(thread, path, script, predeclared)
	if err != nil {
		return nil, engine.NewPermanentError("generator script failed", err).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}

	fn, ok := globals[modificationFunction].(starlark.Callable)
	if !ok {
		return nil, engine.NewPermanentError("generator script must define a modification() function", nil).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}

	value, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return nil, engine.NewPermanentError("modification() call failed", err).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}

	converted, err := fromStarlarkValue(value)
	if err != nil {
		return nil, engine.NewPermanentError("modification() returned an unconvertible value", err).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}
	output, ok := converted.(map[string]any)
	if !ok {
		return nil, engine.NewPermanentError("modification() must return a dict", nil).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}
	return output, nil
}

// definitionFromOutput maps a generator's dict onto an engine definition,
// applying the same normalization as the YAML path.
func definitionFromOutput(id, component string, output map[string]any) (*engine.ModificationDefinition, error) {
	def := &engine.ModificationDefinition{
		ID:        id,
		Component: component,
		Items:     make(map[string]*engine.ItemUpdate),
	}

	if requires, ok := output["requires"].(map[string]any); ok {
		var err error
		if def.Dependencies.Components, err = stringSlice(requires["modules"]); err != nil {
			return nil, invalidOutput(id, "requires.modules", err)
		}
		if def.Dependencies.ConfigObjects, err = stringSlice(requires["config"]); err != nil {
			return nil, invalidOutput(id, "requires.config", err)
		}
	}

	if items, ok := output["items"].(map[string]any); ok {
		for name, raw := range items {
			block, ok := raw.(map[string]any)
			if !ok {
				return nil, invalidOutput(id, "items."+name, fmt.Errorf("expected dict, got %T", raw))
			}
			update := &engine.ItemUpdate{}
			var err error
			if update.Add, err = bucket(block, "add"); err != nil {
				return nil, invalidOutput(id, "items."+name, err)
			}
			if update.Change, err = bucket(block, "change"); err != nil {
				return nil, invalidOutput(id, "items."+name, err)
			}
			if update.Delete, err = bucket(block, "delete"); err != nil {
				return nil, invalidOutput(id, "items."+name, err)
			}
			def.Items[name] = update
		}
	}

	if global, ok := output["global"].(map[string]any); ok {
		actions := &engine.GlobalActions{}
		var err error
		if actions.InstallComponents, err = stringSlice(global["install"]); err != nil {
			return nil, invalidOutput(id, "global.install", err)
		}
		if actions.ImportObjects, err = stringSlice(global["import"]); err != nil {
			return nil, invalidOutput(id, "global.import", err)
		}
		if !actions.IsEmpty() {
			def.Global = actions
		}
	}

	if len(def.Items) == 0 {
		return nil, engine.NewPermanentError("generator produced no items", nil).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}

	return def, nil
}

func invalidOutput(id, field string, err error) error {
	return engine.NewPermanentError(fmt.Sprintf("invalid generator output at %s", field), err).
		WithCode(engine.ErrCodeValidation).WithDefinition(id)
}

func bucket(block map[string]any, key string) (map[string]any, error) {
	raw, ok := block[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected dict, got %T", key, raw)
	}
	return normalizeMap(m)
}

func stringSlice(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", raw)
	}
	out := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", elem)
		}
		out[i] = s
	}
	return out, nil
}
