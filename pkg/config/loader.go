package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/confmod/confmod/pkg/engine"
)

// Loader parses modification definition files. YAML files are decoded
// directly; .star files are evaluated through the Starlark generator.
type Loader struct {
	validator *validator.Validate
	generator *StarlarkGenerator
}

// NewLoader creates a definition loader.
func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(),
		generator: NewStarlarkGenerator(30 * time.Second),
	}
}

// DefinitionID derives a definition id from its component and filename:
// the component id plus the filename without extension.
func DefinitionID(component, path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return component + "." + base
}

// LoadFile parses one definition file for a component. The extension
// selects the format: .yaml/.yml are declarative, .star is generated.
func (l *Loader) LoadFile(component, path string) (*engine.ModificationDefinition, error) {
	id := DefinitionID(component, path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.loadYAML(id, component, path)
	case ".star":
		return l.generator.Generate(id, component, path)
	default:
		return nil, engine.NewPermanentError("unsupported definition file extension", nil).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}
}

func (l *Loader) loadYAML(id, component, path string) (*engine.ModificationDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}

	file := &DefinitionFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, engine.NewPermanentError("failed to parse definition file", err).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}

	if err := l.validator.Struct(file); err != nil {
		return nil, engine.NewPermanentError("definition file failed validation", err).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}
	if len(file.Items) == 0 {
		return nil, engine.NewPermanentError("definition has no items", nil).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}

	def, err := file.ToDefinition(id, component)
	if err != nil {
		return nil, engine.NewPermanentError("invalid definition content", err).
			WithCode(engine.ErrCodeValidation).WithDefinition(id)
	}
	return def, nil
}
