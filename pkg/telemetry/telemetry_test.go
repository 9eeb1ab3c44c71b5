package telemetry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/confmod/confmod/pkg/engine"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config valid, got: %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing service name", func(c *Config) { c.ServiceName = "" }},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.Endpoint = ""
		}},
		{"unknown exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}},
		{"bad sampling rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "stdout"
			c.Tracing.SamplingRate = 2.0
		}},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestNewLogger_ParsesLevels(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}

	logger, err = NewLogger(LoggingConfig{Level: "nonsense", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info fallback, got %s", logger.GetLevel())
	}
}

func TestMetrics_DisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// None of these may panic on a disabled instance.
	m.RecordCycleStarted("comp")
	m.RecordCycleResult(&engine.CycleResult{Duration: time.Second})
	m.RecordDefinitionApplied("comp")
	m.RecordDefinitionFailed("comp")
	m.SetLedgerSize(3)
	m.RecordError("transient")
}

func TestMetrics_EnabledRecords(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "confmod"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordCycleStarted("comp")
	m.RecordCycleResult(&engine.CycleResult{
		Duration: time.Second,
		Failed:   []string{"comp.001"},
		Deferred: 2,
		Warnings: 1,
	})
	m.SetLedgerSize(5)

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, name := range []string{
		"confmod_cycles_started_total",
		"confmod_cycles_completed_total",
		"confmod_ledger_size",
	} {
		if !found[name] {
			t.Errorf("Expected metric family %s, got %v", name, found)
		}
	}
}

func TestTracer_DisabledIsUsable(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: false}, "confmod", "test", "dev")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}

	ctx, span := tracer.StartCycleSpan(t.Context(), "cycle-1", "comp")
	RecordSuccess(span)
	span.End()

	if err := tracer.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
