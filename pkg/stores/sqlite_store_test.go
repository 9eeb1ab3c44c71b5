package stores

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/confmod/confmod/pkg/engine"
)

// setupTestStore creates a file-backed SQLite store in a temp directory.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "confmod.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("Expected error for empty database path")
	}
}

func TestPutGetObject(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tree := engine.ConfigTree{
		"name":    "svc",
		"modules": []any{"foo", "bar"},
		"nested":  map[string]any{"enabled": true},
	}
	if err := store.PutObject(ctx, "app.server", tree); err != nil {
		t.Fatalf("failed to put object: %v", err)
	}

	got, err := store.GetObject(ctx, "app.server")
	if err != nil {
		t.Fatalf("failed to get object: %v", err)
	}
	if got["name"] != "svc" {
		t.Errorf("Expected name svc, got %v", got["name"])
	}
	if !reflect.DeepEqual(got["modules"], []any{"foo", "bar"}) {
		t.Errorf("Expected modules list, got %v", got["modules"])
	}
	if !reflect.DeepEqual(got["nested"], map[string]any{"enabled": true}) {
		t.Errorf("Expected nested map, got %v", got["nested"])
	}
}

func TestGetObject_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetObject(context.Background(), "absent")
	if err == nil {
		t.Fatal("Expected error for absent object")
	}
	if !engine.IsPermanent(err) {
		t.Errorf("Expected permanent not-found error, got: %v", err)
	}
}

func TestPutObject_Overwrite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutObject(ctx, "obj", engine.ConfigTree{"v": "first"}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.PutObject(ctx, "obj", engine.ConfigTree{"v": "second"}); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, err := store.GetObject(ctx, "obj")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["v"] != "second" {
		t.Errorf("Expected overwritten value, got %v", got["v"])
	}

	var version int64
	err = store.db.QueryRowContext(ctx, `SELECT version FROM config_objects WHERE name = ?`, "obj").Scan(&version)
	if err != nil {
		t.Fatalf("version query: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected version 2 after overwrite, got %d", version)
	}
}

func TestDeleteObject(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutObject(ctx, "obj", engine.ConfigTree{"v": 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.DeleteObject(ctx, "obj"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if exists, _ := store.HasObject(ctx, "obj"); exists {
		t.Error("Expected object gone after delete")
	}

	// Deleting a missing object is not an error.
	if err := store.DeleteObject(ctx, "obj"); err != nil {
		t.Errorf("Expected no error deleting absent object, got: %v", err)
	}
}

func TestListObjectNames(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"b.obj", "a.obj", "c.obj"} {
		if err := store.PutObject(ctx, name, engine.ConfigTree{}); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}

	names, err := store.ListObjectNames(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"a.obj", "b.obj", "c.obj"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected sorted names %v, got %v", want, names)
	}
}

func TestUpdateObject_AbsentSeesNil(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.UpdateObject(ctx, "fresh", func(tree engine.ConfigTree) (engine.ConfigTree, error) {
		if tree != nil {
			t.Errorf("Expected nil tree for absent object, got %v", tree)
		}
		return engine.ConfigTree{"created": true}, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetObject(ctx, "fresh")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["created"] != true {
		t.Errorf("Expected created object, got %v", got)
	}
}

func TestUpdateObject_ReadModifyWrite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutObject(ctx, "counter", engine.ConfigTree{"n": float64(1)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	err := store.UpdateObject(ctx, "counter", func(tree engine.ConfigTree) (engine.ConfigTree, error) {
		tree["n"] = tree["n"].(float64) + 1
		return tree, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetObject(ctx, "counter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["n"] != float64(2) {
		t.Errorf("Expected n=2, got %v", got["n"])
	}
}

func TestUpdateObject_FnErrorRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutObject(ctx, "obj", engine.ConfigTree{"v": "kept"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	wantErr := engine.NewPermanentError("rejected", nil)
	err := store.UpdateObject(ctx, "obj", func(engine.ConfigTree) (engine.ConfigTree, error) {
		return nil, wantErr
	})
	if err == nil {
		t.Fatal("Expected fn error to propagate")
	}

	got, _ := store.GetObject(ctx, "obj")
	if got["v"] != "kept" {
		t.Errorf("Expected object unchanged after failed update, got %v", got)
	}
}

func TestRecordAndListCycles(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := &engine.CycleResult{
		ID:      "cycle-1",
		Trigger: engine.InstallEvent{Component: "comp-a", Scope: engine.ScopeComponent, Time: time.Now().Add(-time.Minute)},
		Applied: []string{"comp-a.001"},
	}
	second := &engine.CycleResult{
		ID:      "cycle-2",
		Trigger: engine.InstallEvent{Component: "comp-b", Scope: engine.ScopeComponent, Time: time.Now()},
	}
	if err := store.RecordCycle(ctx, first); err != nil {
		t.Fatalf("record first: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := store.RecordCycle(ctx, second); err != nil {
		t.Fatalf("record second: %v", err)
	}

	cycles, err := store.ListCycles(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, got %d", len(cycles))
	}
	if cycles[0].ID != "cycle-2" {
		t.Errorf("Expected newest first, got %s", cycles[0].ID)
	}
	if !reflect.DeepEqual(cycles[1].Applied, []string{"comp-a.001"}) {
		t.Errorf("Expected applied ids round-tripped, got %v", cycles[1].Applied)
	}
}
