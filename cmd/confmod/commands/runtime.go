package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/confmod/confmod/pkg/config"
	"github.com/confmod/confmod/pkg/engine"
	"github.com/confmod/confmod/pkg/policy"
	"github.com/confmod/confmod/pkg/registry"
	"github.com/confmod/confmod/pkg/stores"
	"github.com/confmod/confmod/pkg/telemetry"
)

// runtime bundles the wired engine collaborators for one command
// invocation.
type runtime struct {
	logger       zerolog.Logger
	store        *stores.SQLiteStore
	registry     *registry.FSRegistry
	ledger       *engine.Ledger
	orchestrator *engine.Orchestrator
	metrics      *telemetry.Metrics
	tracer       *telemetry.Tracer
}

// newRuntime opens the store, migrates it, and wires the orchestrator from
// the persistent flags.
func newRuntime(ctx context.Context) (*runtime, error) {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := registry.NewFSRegistry(registryDir, logger)
	importer := config.NewSeedImporter(store, seedDir, logger)
	ledger := engine.NewLedger(store)
	applier := engine.NewApplier(store, reg, importer, logger)

	var opts []engine.OrchestratorOption
	if selfComponent != "" {
		opts = append(opts, engine.WithSelfComponent(selfComponent))
	}
	if !disablePolicy {
		gate, err := policy.NewEngine(logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if policyDir != "" {
			custom, err := policy.NewLoader(logger).LoadFromPaths([]string{policyDir})
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			if err := gate.AddPolicies(custom); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		opts = append(opts, engine.WithGate(gate))
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:       traceExporter != "",
		Exporter:      traceExporter,
		Endpoint:      traceEndpoint,
		SamplingRate:  1.0,
		ExportTimeout: 30 * time.Second,
		Insecure:      true,
	}, "confmod", buildVersion, "production")
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &runtime{
		logger:       logger,
		store:        store,
		registry:     reg,
		ledger:       ledger,
		orchestrator: engine.NewOrchestrator(store, reg, ledger, applier, logger, opts...),
		metrics:      metrics,
		tracer:       tracer,
	}, nil
}

// close releases the runtime's resources.
func (r *runtime) close() {
	if r.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.tracer.Shutdown(shutdownCtx)
		cancel()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

// tracedCycle runs one orchestration cycle under a span. The cycle id is
// attached once the result is known.
func (r *runtime) tracedCycle(ctx context.Context, trigger string, run func(context.Context) (*engine.CycleResult, error)) (*engine.CycleResult, error) {
	ctx, span := r.tracer.StartCycleSpan(ctx, "", trigger)
	defer span.End()

	result, err := run(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		class := "transient"
		switch {
		case engine.IsPermanent(err):
			class = "permanent"
		case engine.IsConflict(err):
			class = "conflict"
		}
		r.metrics.RecordError(class)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	if result != nil {
		span.SetAttributes(telemetry.AttrCycleID.String(result.ID))
	}
	return result, nil
}

// finishCycle records a completed cycle in history and metrics.
func (r *runtime) finishCycle(ctx context.Context, result *engine.CycleResult) {
	if result == nil {
		return
	}
	if err := r.store.RecordCycle(ctx, result); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record cycle history")
	}
	r.metrics.RecordCycleResult(result)
	for _, id := range result.Applied {
		r.metrics.RecordDefinitionApplied(definitionComponent(id))
	}
	for _, id := range result.Failed {
		r.metrics.RecordDefinitionFailed(definitionComponent(id))
	}
	if applied, err := r.ledger.Get(ctx); err == nil {
		r.metrics.SetLedgerSize(float64(len(applied)))
	}
}

// definitionComponent extracts the owning component from a definition id
// of the form <component>.<file>.
func definitionComponent(id string) string {
	if i := strings.LastIndex(id, "."); i > 0 {
		return id[:i]
	}
	return id
}
