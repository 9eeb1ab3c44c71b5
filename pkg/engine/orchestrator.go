package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultSelfComponent is the component id the engine itself is shipped
// under. An install event for this component is the bootstrap signal.
const DefaultSelfComponent = "confmod.core"

// Orchestrator drives the discover -> filter -> apply -> mark cycle in
// response to install events. It is idle between triggers; there is no
// polling loop.
type Orchestrator struct {
	store     Store
	registry  Registry
	ledger    *Ledger
	evaluator *DependencyEvaluator
	applier   *Applier
	gate      Gate
	logger    zerolog.Logger

	// selfComponent is the id whose install event means bootstrap: the
	// satisfied set is marked without being applied, because a fresh install
	// already ships the end state.
	selfComponent string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithGate installs a policy gate consulted during filtering.
func WithGate(gate Gate) OrchestratorOption {
	return func(o *Orchestrator) { o.gate = gate }
}

// WithSelfComponent overrides the component id treated as the engine's own.
func WithSelfComponent(id string) OrchestratorOption {
	return func(o *Orchestrator) { o.selfComponent = id }
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(store Store, registry Registry, ledger *Ledger, applier *Applier, logger zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:         store,
		registry:      registry,
		ledger:        ledger,
		evaluator:     NewDependencyEvaluator(),
		applier:       applier,
		logger:        logger.With().Str("component", "orchestrator").Logger(),
		selfComponent: DefaultSelfComponent,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleInstall runs one cycle for an install event. Sub-entity events are
// ignored; an event for the engine's own component runs a bootstrap cycle
// that marks the satisfied set without applying it.
func (o *Orchestrator) HandleInstall(ctx context.Context, event InstallEvent) (*CycleResult, error) {
	if event.Scope == ScopeEntity {
		o.logger.Debug().Str("trigger", event.Component).Msg("sub-entity event ignored")
		return nil, nil
	}
	markOnly := event.Component == o.selfComponent
	return o.runCycle(ctx, event, markOnly)
}

// PreUpgrade marks every currently satisfied, unapplied definition without
// applying it. It is run immediately before upgrading the engine's own
// component, so that modifications the upgrade already incorporates are not
// re-applied afterwards.
func (o *Orchestrator) PreUpgrade(ctx context.Context) (*CycleResult, error) {
	event := InstallEvent{
		Component: o.selfComponent,
		Scope:     ScopeComponent,
		Time:      time.Now(),
	}
	return o.runCycle(ctx, event, true)
}

func (o *Orchestrator) runCycle(ctx context.Context, event InstallEvent, markOnly bool) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{
		ID:      uuid.New().String(),
		Trigger: event,
	}
	logger := o.logger.With().Str("cycle_id", result.ID).Str("trigger", event.Component).Logger()
	enter := func(state CycleState) {
		result.Transitions = append(result.Transitions, Transition{State: state, At: time.Now()})
	}

	// Discovering
	enter(StateDiscovering)
	definitions, err := o.registry.Definitions(ctx)
	if err != nil {
		return nil, NewTransientError("failed to enumerate modification definitions", err).
			WithCode(ErrCodeStoreFailed)
	}
	result.Discovered = len(definitions)

	activeComponents, err := o.registry.ActiveComponents(ctx)
	if err != nil {
		return nil, NewTransientError("failed to list active components", err).
			WithCode(ErrCodeStoreFailed)
	}
	existingObjects, err := o.store.ListObjectNames(ctx)
	if err != nil {
		return nil, NewTransientError("failed to list config objects", err).
			WithCode(ErrCodeStoreFailed)
	}

	// Filtering
	enter(StateFiltering)
	applied, err := o.ledger.Get(ctx)
	if err != nil {
		return nil, err
	}
	eligible := make([]*ModificationDefinition, 0, len(definitions))
	for _, def := range definitions {
		if _, ok := applied[def.ID]; ok {
			result.AlreadyApplied++
			continue
		}
		if !o.evaluator.IsSatisfied(def, activeComponents, existingObjects) {
			missingComponents, missingObjects := o.evaluator.MissingDependencies(def, activeComponents, existingObjects)
			logger.Debug().
				Str("definition", def.ID).
				Strs("missing_components", missingComponents).
				Strs("missing_objects", missingObjects).
				Msg("definition deferred")
			result.Deferred++
			continue
		}
		if o.gate != nil {
			allow, reason, err := o.gate.Allow(ctx, def)
			if err != nil {
				return nil, NewTransientError("policy evaluation failed", err).
					WithCode(ErrCodePolicy).WithDefinition(def.ID)
			}
			if !allow {
				logger.Info().Str("definition", def.ID).Str("reason", reason).Msg("definition denied by policy")
				result.Denied++
				continue
			}
		}
		eligible = append(eligible, def)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	// Applying. A bootstrap or pre-upgrade cycle skips execution entirely:
	// the satisfied set is assumed to be incorporated already.
	enter(StateApplying)
	toMark := make([]string, 0, len(eligible))
	if markOnly {
		for _, def := range eligible {
			toMark = append(toMark, def.ID)
		}
		logger.Info().Int("count", len(toMark)).Msg("marking satisfied set without applying")
	} else {
		for _, def := range eligible {
			applyResult, err := o.applier.ApplyDefinition(ctx, def)
			if err != nil {
				// Failed definitions stay unmarked and are retried on the
				// next trigger; the rest of the batch proceeds.
				logger.Error().Err(err).Str("definition", def.ID).Msg("definition failed")
				result.Failed = append(result.Failed, def.ID)
				continue
			}
			result.Applied = append(result.Applied, def.ID)
			result.Warnings += applyResult.Warnings
			toMark = append(toMark, def.ID)
		}
	}

	// Marking
	enter(StateMarking)
	if err := o.ledger.MarkApplied(ctx, toMark); err != nil {
		return nil, err
	}
	result.Marked = toMark
	enter(StateIdle)

	result.Duration = time.Since(start)
	logger.Info().
		Int("discovered", result.Discovered).
		Int("already_applied", result.AlreadyApplied).
		Int("deferred", result.Deferred).
		Int("denied", result.Denied).
		Int("applied", len(result.Applied)).
		Int("failed", len(result.Failed)).
		Int("warnings", result.Warnings).
		Dur("duration", result.Duration).
		Msg("cycle complete")
	return result, nil
}
