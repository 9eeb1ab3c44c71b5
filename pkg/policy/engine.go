package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/confmod/confmod/pkg/engine"
)

// Engine evaluates modification definitions against Rego policies and
// implements engine.Gate. Violations at error severity or above deny the
// definition; lower severities are advisory and only logged.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	logger   zerolog.Logger
}

// NewEngine creates a policy engine preloaded with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*Policy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for _, policy := range GetBuiltinPolicies() {
		p := policy
		if err := e.addPolicy(&p); err != nil {
			return nil, fmt.Errorf("failed to load built-in policy %s: %w", p.Name, err)
		}
	}

	return e, nil
}

// Allow implements engine.Gate. It reports whether the definition may be
// applied now; the reason carries the first blocking violation.
func (e *Engine) Allow(ctx context.Context, def *engine.ModificationDefinition) (bool, string, error) {
	result, err := e.Evaluate(ctx, def)
	if err != nil {
		return false, "", err
	}

	for _, violation := range result.Violations {
		if violation.Severity == string(SeverityWarning) || violation.Severity == string(SeverityInfo) {
			e.logger.Warn().
				Str("policy", violation.Policy).
				Str("definition", def.ID).
				Msg(violation.Message)
		}
	}

	if result.Allowed {
		return true, "", nil
	}
	for _, violation := range result.Violations {
		if violation.Severity == string(SeverityError) || violation.Severity == string(SeverityCritical) {
			return false, violation.Message, nil
		}
	}
	return false, "denied by policy", nil
}

// Evaluate runs every enabled policy against one definition.
func (e *Engine) Evaluate(ctx context.Context, def *engine.ModificationDefinition) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input, err := buildInput(def)
	if err != nil {
		return nil, err
	}

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}
	for _, policy := range e.policies {
		if !policy.Enabled {
			continue
		}
		violations, err := e.evaluatePolicy(ctx, policy, def.ID, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", policy.Name, err)
		}
		result.Violations = append(result.Violations, violations...)
	}

	for i := range result.Violations {
		severity := result.Violations[i].Severity
		if severity == string(SeverityError) || severity == string(SeverityCritical) {
			result.Allowed = false
			break
		}
	}
	return result, nil
}

// AddPolicies registers additional policies, replacing same-named ones.
func (e *Engine) AddPolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range policies {
		if err := e.addPolicyLocked(&policies[i]); err != nil {
			return err
		}
	}
	return nil
}

// ListPolicies returns all registered policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	policies := make([]Policy, 0, len(e.policies))
	for _, policy := range e.policies {
		policies = append(policies, *policy)
	}
	return policies
}

func (e *Engine) addPolicy(policy *Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addPolicyLocked(policy)
}

func (e *Engine) addPolicyLocked(policy *Policy) error {
	// Compile once up front so malformed policies fail at load time.
	query := fmt.Sprintf("data.%s.deny", extractPackageName(policy.Rego))
	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
	)
	if _, err := r.PrepareForEval(context.Background()); err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", policy.Name, err)
	}

	e.policies[policy.Name] = policy
	e.logger.Debug().Str("policy", policy.Name).Msg("policy registered")
	return nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, policy *Policy, definitionID string, input *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", extractPackageName(policy.Rego))

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(policy, definitionID, d))
		}
	}
	return violations, nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "confmod.policies"
}

// createViolation creates a Violation from one deny-set entry.
func createViolation(policy *Policy, definitionID string, result interface{}) Violation {
	violation := Violation{
		Policy:     policy.Name,
		Definition: definitionID,
		Severity:   string(policy.Severity),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = sev
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// buildInput converts a definition to the JSON shape policies see.
func buildInput(def *engine.ModificationDefinition) (*Input, error) {
	blob, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode definition for policy input: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode definition for policy input: %w", err)
	}
	return &Input{
		Definition: doc,
		Context: InputContext{
			Timestamp: time.Now(),
			Operation: "apply",
		},
	}, nil
}
