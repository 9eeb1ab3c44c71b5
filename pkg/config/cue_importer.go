package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/rs/zerolog"

	"github.com/confmod/confmod/pkg/engine"
)

// SeedImporter implements engine.Importer over a directory of CUE files.
// Importing the object "app.server" evaluates <seedDir>/app.server.cue and
// writes the result to the store. Objects that already exist are left
// untouched, so re-running an import action is safe.
type SeedImporter struct {
	store   engine.Store
	seedDir string
	logger  zerolog.Logger
}

// NewSeedImporter creates an importer reading seeds from seedDir.
func NewSeedImporter(store engine.Store, seedDir string, logger zerolog.Logger) *SeedImporter {
	return &SeedImporter{
		store:   store,
		seedDir: seedDir,
		logger:  logger.With().Str("component", "importer").Logger(),
	}
}

// ImportObject loads a seed config object by name and writes it to the
// store. Importing an object that already exists is a no-op.
func (i *SeedImporter) ImportObject(ctx context.Context, name string) error {
	exists, err := i.store.HasObject(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check config object %s: %w", name, err)
	}
	if exists {
		i.logger.Debug().Str("object", name).Msg("config object already present, skipping import")
		return nil
	}

	tree, err := i.loadSeed(name)
	if err != nil {
		return err
	}

	if err := i.store.PutObject(ctx, name, tree); err != nil {
		return fmt.Errorf("failed to store imported config object %s: %w", name, err)
	}
	i.logger.Info().Str("object", name).Msg("config object imported")
	return nil
}

// loadSeed evaluates one CUE seed file into a config tree.
func (i *SeedImporter) loadSeed(name string) (engine.ConfigTree, error) {
	path := filepath.Join(i.seedDir, name+".cue")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewPermanentError("seed file not found", err).
			WithCode(engine.ErrCodeNotFound).WithObject(name)
	}

	value := cuecontext.New().CompileString(string(data), cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, engine.NewPermanentError("failed to compile seed file", err).
			WithCode(engine.ErrCodeValidation).WithObject(name)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, engine.NewPermanentError("seed file failed validation", err).
			WithCode(engine.ErrCodeValidation).WithObject(name)
	}

	blob, err := value.MarshalJSON()
	if err != nil {
		return nil, engine.NewPermanentError("seed value is not concrete", err).
			WithCode(engine.ErrCodeValidation).WithObject(name)
	}

	var tree engine.ConfigTree
	if err := json.Unmarshal(blob, &tree); err != nil {
		return nil, engine.NewPermanentError("seed value is not a config tree", err).
			WithCode(engine.ErrCodeValidation).WithObject(name)
	}
	return tree, nil
}
