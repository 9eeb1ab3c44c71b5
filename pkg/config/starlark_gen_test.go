package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/confmod/confmod/pkg/engine"
)

func TestStarlarkGenerator_Generate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "010-open-ports.star", `
PORTS = [8080, 8443]

def modification():
    rules = {}
    for port in PORTS:
        rules["port_" + str(port)] = {"port": port, "allow": True}
    return {
        "requires": {"config": ["net.firewall"]},
        "items": {
            "net.firewall": {
                "add": {"rules": rules},
            },
        },
    }
`)

	def, err := NewStarlarkGenerator(5*time.Second).Generate("core.010-open-ports", "core", path)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if def.ID != "core.010-open-ports" {
		t.Errorf("Expected generator id preserved, got %s", def.ID)
	}
	if !reflect.DeepEqual(def.Dependencies.ConfigObjects, []string{"net.firewall"}) {
		t.Errorf("Expected config dep [net.firewall], got %v", def.Dependencies.ConfigObjects)
	}

	item := def.Items["net.firewall"]
	if item == nil {
		t.Fatal("Expected item for net.firewall")
	}
	rules, ok := item.Add["rules"].(map[string]any)
	if !ok {
		t.Fatalf("Expected rules map, got %T", item.Add["rules"])
	}
	want := map[string]any{"port": float64(8080), "allow": true}
	if !reflect.DeepEqual(rules["port_8080"], want) {
		t.Errorf("Expected normalized rule %v, got %v", want, rules["port_8080"])
	}
}

func TestStarlarkGenerator_ComponentPredeclared(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "001.star", `
def modification():
    return {"items": {component + ".settings": {"add": {"owner": component}}}}
`)

	def, err := NewStarlarkGenerator(5*time.Second).Generate("webui.001", "webui", path)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	item := def.Items["webui.settings"]
	if item == nil {
		t.Fatalf("Expected item keyed by component, got %v", def.Items)
	}
	if item.Add["owner"] != "webui" {
		t.Errorf("Expected owner webui, got %v", item.Add["owner"])
	}
}

func TestStarlarkGenerator_MissingFunction(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "001.star", `x = 1`)

	_, err := NewStarlarkGenerator(5*time.Second).Generate("comp.001", "comp", path)
	if err == nil {
		t.Fatal("Expected error for script without modification()")
	}
}

func TestStarlarkGenerator_ScriptError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "001.star", `
def modification():
    fail("boom")
`)

	_, err := NewStarlarkGenerator(5*time.Second).Generate("comp.001", "comp", path)
	if err == nil {
		t.Fatal("Expected error from failing script")
	}
}

func TestStarlarkGenerator_MissingItemsRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "001.star", `
def modification():
    return {"requires": {"modules": ["core"]}}
`)

	_, err := NewStarlarkGenerator(5*time.Second).Generate("comp.001", "comp", path)
	if err == nil {
		t.Fatal("Expected error for generator output without items")
	}
	if !engine.IsPermanent(err) {
		t.Errorf("Expected permanent validation error, got: %v", err)
	}
}

func TestStarlarkGenerator_NonDictReturn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "001.star", `
def modification():
    return [1, 2]
`)

	_, err := NewStarlarkGenerator(5*time.Second).Generate("comp.001", "comp", path)
	if err == nil {
		t.Fatal("Expected error for non-dict return value")
	}
}
