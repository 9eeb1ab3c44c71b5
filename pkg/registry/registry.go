// Package registry discovers active components and their modification
// definitions from a directory tree. A component is active when a directory
// named after it exists under the registry root; its definitions live in a
// modifications/ subdirectory.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/confmod/confmod/pkg/config"
	"github.com/confmod/confmod/pkg/engine"
)

// modificationsDir is the per-component subdirectory holding definitions.
const modificationsDir = "modifications"

// FSRegistry implements engine.Registry and engine.Installer over a
// directory tree:
//
//	<root>/<component>/modifications/*.yaml
//	<root>/<component>/modifications/*.star
type FSRegistry struct {
	root   string
	loader *config.Loader
	logger zerolog.Logger
}

// NewFSRegistry creates a registry rooted at dir.
func NewFSRegistry(dir string, logger zerolog.Logger) *FSRegistry {
	return &FSRegistry{
		root:   dir,
		loader: config.NewLoader(),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Root returns the registry's root directory.
func (r *FSRegistry) Root() string {
	return r.root
}

// ActiveComponents returns the ids of all active components, sorted.
func (r *FSRegistry) ActiveComponents(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry root: %w", err)
	}

	var components []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		components = append(components, entry.Name())
	}
	sort.Strings(components)
	return components, nil
}

// Definitions enumerates the definitions of all active components.
// Malformed files are skipped with a warning and do not abort discovery.
func (r *FSRegistry) Definitions(ctx context.Context) ([]*engine.ModificationDefinition, error) {
	components, err := r.ActiveComponents(ctx)
	if err != nil {
		return nil, err
	}

	var definitions []*engine.ModificationDefinition
	for _, component := range components {
		dir := filepath.Join(r.root, component, modificationsDir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read modifications of %s: %w", component, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".yaml", ".yml", ".star":
			default:
				continue
			}

			path := filepath.Join(dir, entry.Name())
			def, err := r.loader.LoadFile(component, path)
			if err != nil {
				r.logger.Warn().Err(err).Str("file", path).Msg("skipping malformed definition file")
				continue
			}
			definitions = append(definitions, def)
		}
	}

	return definitions, nil
}

// InstallComponent activates a component by creating its directory. This
// implements engine.Installer for the install global action; components
// with real payloads are expected to be unpacked by outside tooling before
// their definitions reference them.
func (r *FSRegistry) InstallComponent(ctx context.Context, id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return engine.NewPermanentError("invalid component id", nil).
			WithCode(engine.ErrCodeValidation)
	}
	dir := filepath.Join(r.root, id, modificationsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to install component %s: %w", id, err)
	}
	r.logger.Info().Str("install", id).Msg("component activated")
	return nil
}
