package engine

// DependencyEvaluator decides whether a modification definition's
// prerequisites currently hold. Unsatisfied definitions are deferred, not
// failed; they are re-evaluated on every future trigger.
type DependencyEvaluator struct{}

// NewDependencyEvaluator creates a dependency evaluator.
func NewDependencyEvaluator() *DependencyEvaluator {
	return &DependencyEvaluator{}
}

// IsSatisfied reports whether every required component is active and every
// required config object exists. Config objects named in the definition's
// Items are implicit dependencies and are included in the check.
func (e *DependencyEvaluator) IsSatisfied(def *ModificationDefinition, activeComponents, existingObjects []string) bool {
	components := toSet(activeComponents)
	for _, id := range def.Dependencies.Components {
		if _, ok := components[id]; !ok {
			return false
		}
	}

	objects := toSet(existingObjects)
	for _, name := range def.RequiredObjects() {
		if _, ok := objects[name]; !ok {
			return false
		}
	}
	return true
}

// MissingDependencies returns the unmet component ids and config object
// names, for status reporting.
func (e *DependencyEvaluator) MissingDependencies(def *ModificationDefinition, activeComponents, existingObjects []string) (components, objects []string) {
	active := toSet(activeComponents)
	for _, id := range def.Dependencies.Components {
		if _, ok := active[id]; !ok {
			components = append(components, id)
		}
	}

	existing := toSet(existingObjects)
	for _, name := range def.RequiredObjects() {
		if _, ok := existing[name]; !ok {
			objects = append(objects, name)
		}
	}
	return components, objects
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
