package engine

import (
	"context"
	"fmt"
	"sort"
)

// LedgerObjectName is the config object the ledger is persisted under.
const LedgerObjectName = "confmod.ledger"

// ledgerKey is the key inside the ledger object holding the applied ids.
const ledgerKey = "applied"

// Ledger is the persisted record of modification ids already applied. It is
// forward-only: once an id is recorded it is never re-applied, and removing
// the source file does not retract the entry.
type Ledger struct {
	store  Store
	object string
}

// NewLedger creates a ledger persisted as LedgerObjectName in the store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, object: LedgerObjectName}
}

// Get returns the set of applied modification ids. A missing ledger object
// means nothing has been applied yet.
func (l *Ledger) Get(ctx context.Context) (map[string]struct{}, error) {
	tree, err := l.store.GetObject(ctx, l.object)
	if err != nil {
		// Only a missing object reads as an empty ledger. Every other
		// failure must surface, or applied ids would be re-applied.
		if IsNotFound(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return idsFromTree(tree), nil
}

// IsApplied reports whether a single id is recorded.
func (l *Ledger) IsApplied(ctx context.Context, id string) (bool, error) {
	applied, err := l.Get(ctx)
	if err != nil {
		return false, err
	}
	_, ok := applied[id]
	return ok, nil
}

// MarkApplied unions ids into the ledger in one transactional write. There
// is no un-mark primitive and no partial retraction.
func (l *Ledger) MarkApplied(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := l.store.UpdateObject(ctx, l.object, func(tree ConfigTree) (ConfigTree, error) {
		applied := idsFromTree(tree)
		for _, id := range ids {
			applied[id] = struct{}{}
		}
		return treeFromIDs(applied), nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark modifications applied: %w", err)
	}
	return nil
}

func idsFromTree(tree ConfigTree) map[string]struct{} {
	applied := make(map[string]struct{})
	if tree == nil {
		return applied
	}
	list, ok := tree[ledgerKey].([]any)
	if !ok {
		return applied
	}
	for _, entry := range list {
		if id, ok := entry.(string); ok {
			applied[id] = struct{}{}
		}
	}
	return applied
}

func treeFromIDs(applied map[string]struct{}) ConfigTree {
	ids := make([]string, 0, len(applied))
	for id := range applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	return ConfigTree{ledgerKey: list}
}
