package policy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/confmod/confmod/pkg/engine"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngine_AllowsOrdinaryDefinition(t *testing.T) {
	e := testEngine(t)

	def := &engine.ModificationDefinition{
		ID:        "webui.001-theme",
		Component: "webui",
		Items: map[string]*engine.ItemUpdate{
			"webui.settings": {Add: map[string]any{"theme": "dark"}},
		},
	}

	allowed, reason, err := e.Allow(context.Background(), def)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Errorf("Expected definition allowed, denied with: %s", reason)
	}
}

func TestEngine_DeniesLedgerModification(t *testing.T) {
	e := testEngine(t)

	def := &engine.ModificationDefinition{
		ID:        "rogue.001",
		Component: "rogue",
		Items: map[string]*engine.ItemUpdate{
			"confmod.ledger": {Delete: map[string]any{"applied": map[string]any{}}},
		},
	}

	allowed, reason, err := e.Allow(context.Background(), def)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Error("Expected ledger-modifying definition denied")
	}
	if reason == "" {
		t.Error("Expected a denial reason")
	}
}

func TestEngine_WarningsDoNotDeny(t *testing.T) {
	e := testEngine(t)

	// Uppercase id fires the naming policy at warning severity; no
	// component fires the ownership policy, also a warning.
	def := &engine.ModificationDefinition{
		ID: "WebUI.001",
		Items: map[string]*engine.ItemUpdate{
			"webui.settings": {Add: map[string]any{"theme": "dark"}},
		},
	}

	result, err := e.Evaluate(context.Background(), def)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected warnings not to deny, got violations %v", result.Violations)
	}
	if len(result.Violations) < 2 {
		t.Errorf("Expected naming and ownership warnings, got %v", result.Violations)
	}
}

func TestEngine_CustomPolicy(t *testing.T) {
	e := testEngine(t)

	err := e.AddPolicies([]Policy{{
		Name:      "freeze-app-server",
		Severity:  SeverityError,
		Enabled:   true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Rego: `package custom.policies.freeze

import rego.v1

deny contains violation if {
	input.definition.items["app.server"]
	violation := {
		"message": "app.server is frozen",
		"severity": "error",
	}
}
`,
	}})
	if err != nil {
		t.Fatalf("AddPolicies: %v", err)
	}

	def := &engine.ModificationDefinition{
		ID:        "webui.002",
		Component: "webui",
		Items: map[string]*engine.ItemUpdate{
			"app.server": {Change: map[string]any{"port": float64(443)}},
		},
	}

	allowed, reason, err := e.Allow(context.Background(), def)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Error("Expected custom policy to deny")
	}
	if reason != "app.server is frozen" {
		t.Errorf("Expected frozen reason, got %q", reason)
	}
}

func TestEngine_MalformedPolicyRejectedAtLoad(t *testing.T) {
	e := testEngine(t)

	err := e.AddPolicies([]Policy{{
		Name:     "broken",
		Severity: SeverityError,
		Enabled:  true,
		Rego:     "package broken\n\nthis is not rego",
	}})
	if err == nil {
		t.Fatal("Expected compile error for malformed policy")
	}
}
