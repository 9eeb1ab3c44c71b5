package registry

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func writeDefinition(t *testing.T, root, component, name, content string) {
	t.Helper()
	dir := filepath.Join(root, component, modificationsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFSRegistry_ActiveComponents(t *testing.T) {
	root := t.TempDir()
	for _, component := range []string{"webui", "core", "certmgr"} {
		if err := os.MkdirAll(filepath.Join(root, component), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	// Hidden directories and plain files are not components.
	if err := os.MkdirAll(filepath.Join(root, ".staging"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "README"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	registry := NewFSRegistry(root, zerolog.Nop())
	components, err := registry.ActiveComponents(context.Background())
	if err != nil {
		t.Fatalf("ActiveComponents: %v", err)
	}
	want := []string{"certmgr", "core", "webui"}
	if !reflect.DeepEqual(components, want) {
		t.Errorf("Expected %v, got %v", want, components)
	}
}

func TestFSRegistry_MissingRootIsEmpty(t *testing.T) {
	registry := NewFSRegistry(filepath.Join(t.TempDir(), "absent"), zerolog.Nop())

	components, err := registry.ActiveComponents(context.Background())
	if err != nil {
		t.Fatalf("Expected no error for missing root, got: %v", err)
	}
	if len(components) != 0 {
		t.Errorf("Expected no components, got %v", components)
	}
}

func TestFSRegistry_Definitions(t *testing.T) {
	root := t.TempDir()
	writeDefinition(t, root, "webui", "001-theme.yaml", `
items:
  webui.settings:
    add:
      theme: dark
`)
	writeDefinition(t, root, "core", "001-base.yaml", `
items:
  core.settings:
    change:
      level: info
`)
	// Non-definition files are ignored.
	writeDefinition(t, root, "webui", "notes.txt", "not a definition")

	registry := NewFSRegistry(root, zerolog.Nop())
	definitions, err := registry.Definitions(context.Background())
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if len(definitions) != 2 {
		t.Fatalf("Expected 2 definitions, got %d", len(definitions))
	}

	ids := []string{definitions[0].ID, definitions[1].ID}
	want := []string{"core.001-base", "webui.001-theme"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected ids %v, got %v", want, ids)
	}
}

func TestFSRegistry_MalformedDefinitionSkipped(t *testing.T) {
	root := t.TempDir()
	writeDefinition(t, root, "webui", "001-good.yaml", `
items:
  obj:
    add:
      k: v
`)
	writeDefinition(t, root, "webui", "002-broken.yaml", "items: [::")
	writeDefinition(t, root, "webui", "003-no-items.yaml", `
requires:
  modules:
    - core
`)

	registry := NewFSRegistry(root, zerolog.Nop())
	definitions, err := registry.Definitions(context.Background())
	if err != nil {
		t.Fatalf("Expected discovery to survive a malformed file, got: %v", err)
	}
	if len(definitions) != 1 || definitions[0].ID != "webui.001-good" {
		t.Errorf("Expected only the good definition, got %v", definitions)
	}
}

func TestFSRegistry_StarlarkDefinition(t *testing.T) {
	root := t.TempDir()
	writeDefinition(t, root, "core", "010-gen.star", `
def modification():
    return {"items": {"core.settings": {"add": {"generated": True}}}}
`)

	registry := NewFSRegistry(root, zerolog.Nop())
	definitions, err := registry.Definitions(context.Background())
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if len(definitions) != 1 || definitions[0].ID != "core.010-gen" {
		t.Fatalf("Expected generated definition, got %v", definitions)
	}
	if definitions[0].Items["core.settings"].Add["generated"] != true {
		t.Errorf("Expected generated content, got %v", definitions[0].Items)
	}
}

func TestFSRegistry_InstallComponent(t *testing.T) {
	root := t.TempDir()
	registry := NewFSRegistry(root, zerolog.Nop())
	ctx := context.Background()

	if err := registry.InstallComponent(ctx, "newcomp"); err != nil {
		t.Fatalf("InstallComponent: %v", err)
	}
	components, err := registry.ActiveComponents(ctx)
	if err != nil {
		t.Fatalf("ActiveComponents: %v", err)
	}
	if !reflect.DeepEqual(components, []string{"newcomp"}) {
		t.Errorf("Expected installed component active, got %v", components)
	}

	if err := registry.InstallComponent(ctx, "../escape"); err == nil {
		t.Error("Expected error for path-escaping component id")
	}
}
