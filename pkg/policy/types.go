package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for advisory findings that do not block application.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that deny application.
	SeverityError Severity = "error"

	// SeverityCritical is for severe violations that deny application.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Definition is the id of the definition that triggered the violation.
	Definition string `json:"definition"`

	// Message describes the violation.
	Message string `json:"message"`

	// Severity is the violation's severity.
	Severity string `json:"severity"`
}

// Result is the outcome of evaluating one definition against all policies.
type Result struct {
	// Allowed is false when any error or critical violation fired.
	Allowed bool `json:"allowed"`

	// Violations lists everything that fired, including advisory findings.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the document handed to Rego queries as input.
type Input struct {
	// Definition is the JSON shape of the modification definition.
	Definition map[string]any `json:"definition"`

	// Context carries evaluation metadata.
	Context InputContext `json:"context"`
}

// InputContext carries evaluation metadata for environment-aware policies.
type InputContext struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
}
