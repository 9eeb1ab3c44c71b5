package engine

import (
	"sort"
	"time"
)

// ConfigTree is a hierarchical configuration value. The root is always a
// map; nested values are maps (map[string]any), lists ([]any), or scalars
// (string, bool, numeric types, nil). The shape matches what yaml.v3 and
// encoding/json produce when decoding into any.
type ConfigTree = map[string]any

// ItemUpdate describes a partial patch against one config object. Add and
// Change carry partial trees keyed by the paths they touch; Delete carries
// empty-map markers for keys to remove and element lists for list removals.
// The structure is exactly what the diff engine emits.
type ItemUpdate struct {
	// Add holds subtrees that are absent from the target and must be merged in.
	Add map[string]any `json:"add,omitempty" yaml:"add,omitempty"`

	// Change holds values that overwrite existing paths in the target.
	Change map[string]any `json:"change,omitempty" yaml:"change,omitempty"`

	// Delete holds removal markers. An empty map deletes the key; a list
	// removes those elements from the list at that key.
	Delete map[string]any `json:"delete,omitempty" yaml:"delete,omitempty"`
}

// IsEmpty reports whether the update carries no operations at all.
func (u *ItemUpdate) IsEmpty() bool {
	if u == nil {
		return true
	}
	return len(u.Add) == 0 && len(u.Change) == 0 && len(u.Delete) == 0
}

// DependencySet names what must exist before a modification may run.
type DependencySet struct {
	// Components lists component ids that must be active.
	Components []string `json:"components,omitempty" yaml:"modules,omitempty"`

	// ConfigObjects lists config object names that must exist in the store.
	ConfigObjects []string `json:"config_objects,omitempty" yaml:"config,omitempty"`
}

// GlobalActions are file-level instructions executed once per definition,
// before any per-object item work.
type GlobalActions struct {
	// InstallComponents names components to install.
	InstallComponents []string `json:"install_components,omitempty" yaml:"install,omitempty"`

	// ImportObjects names config objects to import from seed sources.
	ImportObjects []string `json:"import_objects,omitempty" yaml:"import,omitempty"`
}

// IsEmpty reports whether there are no global actions.
func (g *GlobalActions) IsEmpty() bool {
	if g == nil {
		return true
	}
	return len(g.InstallComponents) == 0 && len(g.ImportObjects) == 0
}

// ModificationDefinition is a declarative patch targeting one or more
// config objects, gated by dependencies and applied at most once.
type ModificationDefinition struct {
	// ID is the definition's identity for ledger purposes. By convention it
	// encodes the providing component plus a unique suffix, derived from the
	// definition's filename.
	ID string `json:"id"`

	// Component is the component that contributed this definition.
	Component string `json:"component"`

	// Dependencies gate when the definition may run. Config objects named in
	// Items are implicit dependencies, merged in before evaluation.
	Dependencies DependencySet `json:"dependencies"`

	// Items maps config object names to the patch applied to each.
	Items map[string]*ItemUpdate `json:"items"`

	// Global carries file-level actions run once before the items.
	Global *GlobalActions `json:"global,omitempty"`
}

// RequiredObjects returns the union of declared config object dependencies
// and the objects named in Items, sorted and deduplicated.
func (d *ModificationDefinition) RequiredObjects() []string {
	seen := make(map[string]struct{}, len(d.Dependencies.ConfigObjects)+len(d.Items))
	for _, name := range d.Dependencies.ConfigObjects {
		seen[name] = struct{}{}
	}
	for name := range d.Items {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EventScope describes how much of a component an install event covers.
type EventScope string

const (
	// ScopeComponent covers a whole component; the orchestrator runs a cycle.
	ScopeComponent EventScope = "component"

	// ScopeEntity covers a sub-entity of a component; the orchestrator
	// takes no action for these.
	ScopeEntity EventScope = "entity"
)

// InstallEvent signals that new configuration may have become available.
type InstallEvent struct {
	// Component is the component whose installation triggered the event.
	Component string `json:"component"`

	// Scope is the event's breadth.
	Scope EventScope `json:"scope"`

	// Time is when the event occurred.
	Time time.Time `json:"time"`
}

// CycleState is a state of the orchestrator's discover->mark cycle.
type CycleState string

const (
	StateIdle        CycleState = "idle"
	StateDiscovering CycleState = "discovering"
	StateFiltering   CycleState = "filtering"
	StateApplying    CycleState = "applying"
	StateMarking     CycleState = "marking"
)

// Transition records one state change during a cycle.
type Transition struct {
	// State is the state entered.
	State CycleState `json:"state"`

	// At is when the state was entered.
	At time.Time `json:"at"`
}

// CycleResult summarizes one orchestration cycle.
type CycleResult struct {
	// ID is the unique identifier for this cycle.
	ID string `json:"id"`

	// Trigger is the event that started the cycle.
	Trigger InstallEvent `json:"trigger"`

	// Transitions is the ordered list of states the cycle passed through.
	Transitions []Transition `json:"transitions"`

	// Discovered is the number of definitions enumerated.
	Discovered int `json:"discovered"`

	// AlreadyApplied is the number dropped because their id was in the ledger.
	AlreadyApplied int `json:"already_applied"`

	// Deferred is the number whose dependencies were not satisfied.
	Deferred int `json:"deferred"`

	// Denied is the number blocked by policy.
	Denied int `json:"denied"`

	// Applied lists the ids that were executed this cycle.
	Applied []string `json:"applied,omitempty"`

	// Failed lists ids whose application failed; they are not marked and
	// will be retried on the next trigger.
	Failed []string `json:"failed,omitempty"`

	// Marked lists the ids committed to the ledger.
	Marked []string `json:"marked,omitempty"`

	// Warnings counts change operations whose target path was absent.
	Warnings int `json:"warnings"`

	// Duration is the total cycle time.
	Duration time.Duration `json:"duration"`
}
