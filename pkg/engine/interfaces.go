package engine

import (
	"context"
)

// Store is the system of record for config objects. Implementations must
// make UpdateObject a transactional read-modify-write; the ledger depends
// on that for its union semantics.
type Store interface {
	// GetObject retrieves a config object by name.
	GetObject(ctx context.Context, name string) (ConfigTree, error)

	// PutObject writes a whole config object in one durable write.
	PutObject(ctx context.Context, name string, tree ConfigTree) error

	// DeleteObject removes a config object. Missing objects are not an error.
	DeleteObject(ctx context.Context, name string) error

	// ListObjectNames returns the names of all stored config objects.
	ListObjectNames(ctx context.Context) ([]string, error)

	// HasObject reports whether a config object exists.
	HasObject(ctx context.Context, name string) (bool, error)

	// UpdateObject applies fn to the current value of the object (nil map if
	// absent) and persists the result within a single transaction.
	UpdateObject(ctx context.Context, name string, fn func(ConfigTree) (ConfigTree, error)) error
}

// Registry is the discovery collaborator: it knows which components are
// active and which modification definitions each contributes.
type Registry interface {
	// ActiveComponents returns the ids of all active components.
	ActiveComponents(ctx context.Context) ([]string, error)

	// Definitions enumerates the modification definitions contributed by all
	// active components. Malformed files are skipped with a warning and do
	// not abort discovery.
	Definitions(ctx context.Context) ([]*ModificationDefinition, error)
}

// Installer handles the install-component global action.
type Installer interface {
	// InstallComponent activates a component by id.
	InstallComponent(ctx context.Context, id string) error
}

// Importer handles the import-config-object global action.
type Importer interface {
	// ImportObject loads a seed config object by name and writes it to the
	// store. Importing an object that already exists is a no-op.
	ImportObject(ctx context.Context, name string) error
}

// Gate is an optional policy hook consulted during filtering. A denied
// definition is deferred, not failed; it is re-evaluated on future triggers.
type Gate interface {
	// Allow reports whether the definition may be applied now. The second
	// return value carries a human-readable reason when denied.
	Allow(ctx context.Context, def *ModificationDefinition) (bool, string, error)
}
