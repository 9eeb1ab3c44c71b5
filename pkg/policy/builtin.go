package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		ledgerProtectionPolicy(),
		definitionNamingPolicy(),
		componentOwnershipPolicy(),
	}
}

// ledgerProtectionPolicy blocks definitions that patch the ledger object
// directly. The ledger is owned by the engine; definitions rewriting it
// could resurrect or suppress other definitions.
func ledgerProtectionPolicy() Policy {
	return Policy{
		Name:        "ledger-protection",
		Description: "Denies definitions that modify the applied-modifications ledger",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package confmod.policies.ledger

import rego.v1

deny contains violation if {
	input.definition.items["confmod.ledger"]
	violation := {
		"message": sprintf("definition %s modifies the ledger object directly", [input.definition.id]),
		"severity": "error",
	}
}
`,
	}
}

// definitionNamingPolicy flags ids that break the lowercase convention.
func definitionNamingPolicy() Policy {
	return Policy{
		Name:        "definition-naming",
		Description: "Flags definition ids that are not lowercase",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package confmod.policies.naming

import rego.v1

deny contains violation if {
	id := input.definition.id
	lower(id) != id
	violation := {
		"message": sprintf("definition id '%s' should be lowercase", [id]),
		"severity": "warning",
	}
}
`,
	}
}

// componentOwnershipPolicy flags definitions with no providing component.
func componentOwnershipPolicy() Policy {
	return Policy{
		Name:        "component-ownership",
		Description: "Flags definitions without a providing component",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package confmod.policies.ownership

import rego.v1

deny contains violation if {
	not input.definition.component
	violation := {
		"message": sprintf("definition %s has no providing component", [input.definition.id]),
		"severity": "warning",
	}
}

deny contains violation if {
	input.definition.component == ""
	violation := {
		"message": sprintf("definition %s has no providing component", [input.definition.id]),
		"severity": "warning",
	}
}
`,
	}
}
