package engine

import (
	"context"
	"reflect"
	"testing"
)

func TestLedger_GetEmptyWhenMissing(t *testing.T) {
	ledger := NewLedger(newMemStore())

	applied, err := ledger.Get(context.Background())
	if err != nil {
		t.Fatalf("Expected no error for missing ledger object, got: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("Expected empty set, got %v", applied)
	}
}

func TestLedger_GetSurfacesStoreErrors(t *testing.T) {
	store := newMemStore()
	store.failGet = NewPermanentError("ledger object corrupted", nil).
		WithCode(ErrCodeValidation).WithObject(LedgerObjectName)
	ledger := NewLedger(store)

	// Any failure other than not-found must surface; reading it as an
	// empty ledger would re-apply everything.
	if _, err := ledger.Get(context.Background()); err == nil {
		t.Fatal("Expected permanent non-not-found store error to surface")
	}
}

func TestLedger_MarkAndQuery(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	if err := ledger.MarkApplied(ctx, []string{"comp.002", "comp.001"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, id := range []string{"comp.001", "comp.002"} {
		ok, err := ledger.IsApplied(ctx, id)
		if err != nil {
			t.Fatalf("IsApplied(%s): %v", id, err)
		}
		if !ok {
			t.Errorf("Expected %s to be applied", id)
		}
	}
	if ok, _ := ledger.IsApplied(ctx, "comp.003"); ok {
		t.Error("Expected comp.003 to be unapplied")
	}
}

func TestLedger_MarkIsUnionAndIdempotent(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	if err := ledger.MarkApplied(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := ledger.MarkApplied(ctx, []string{"b", "c"}); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	applied, err := ledger.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	if !reflect.DeepEqual(applied, want) {
		t.Errorf("Expected union %v, got %v", want, applied)
	}
}

func TestLedger_PersistedAsSortedConfigObject(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	if err := ledger.MarkApplied(ctx, []string{"z", "a", "m"}); err != nil {
		t.Fatalf("mark: %v", err)
	}

	tree, err := store.GetObject(ctx, LedgerObjectName)
	if err != nil {
		t.Fatalf("Expected ledger stored as a config object, got: %v", err)
	}
	want := []any{"a", "m", "z"}
	if !reflect.DeepEqual(tree["applied"], want) {
		t.Errorf("Expected sorted applied list %v, got %v", want, tree["applied"])
	}
}

func TestLedger_MarkEmptyIsNoop(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store)

	if err := ledger.MarkApplied(context.Background(), nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, ok := store.objects[LedgerObjectName]; ok {
		t.Error("Expected no ledger object created for an empty mark")
	}
}
