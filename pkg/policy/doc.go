// Package policy provides Open Policy Agent (OPA) integration for confmod.
//
// Modification definitions are evaluated against Rego policies before they
// are applied. A definition denied by policy is deferred, not failed: it is
// re-evaluated on every future trigger, so lifting a policy restriction is
// enough to let the definition through.
//
// # Built-in Policies
//
//  1. ledger-protection - Denies definitions that patch the ledger object
//  2. definition-naming - Flags ids that are not lowercase (advisory)
//  3. component-ownership - Flags definitions without a component (advisory)
//
// # Custom Policies
//
// Custom policies are Rego modules with a deny set over the definition
// input document:
//
//	package custom.policies.freeze
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.definition.items["app.server"]
//	    violation := {
//	        "message": "app.server is frozen during the release window",
//	        "severity": "error",
//	    }
//	}
//
// # Severity Levels
//
// Violations at error or critical severity deny the definition. Warning
// and info findings are logged but do not block.
package policy
