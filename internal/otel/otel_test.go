package otel

import (
	"context"
	"testing"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	p, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.Tracer == nil || p.Meter == nil {
		t.Fatal("noop provider must still hand out a tracer and meter")
	}
	counters, err := p.Counters(context.Background())
	if err != nil || counters != nil {
		t.Fatalf("noop Counters = %v, %v", counters, err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestProvider_CountersSumPerInstrument(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, Config{Enabled: true, Exporter: "none", ServiceName: "udo-test"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(ctx)

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	Inc(ctx, m.ContextRenders, AttrOperation.String("init"))
	Inc(ctx, m.ContextRenders, AttrOperation.String("watch"))
	Inc(ctx, m.Handoffs)

	got, err := p.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if got["udo.context.renders"] != 2 || got["udo.handoffs"] != 1 {
		t.Fatalf("unexpected counters %v", got)
	}
	if _, ok := got["udo.reminders"]; ok {
		t.Fatalf("untouched counter reported: %v", got)
	}
}

func TestStartSpan_Records(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, Config{Enabled: true, Exporter: "none"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(ctx)

	_, span := StartSpan(ctx, p.Tracer, "udo init",
		AttrProject.String("/work/demo"),
		AttrStorageID.String("demo-1a2b3c4d"),
	)
	defer span.End()
	if !span.IsRecording() || !span.SpanContext().IsValid() {
		t.Fatal("expected a sampled, recording span")
	}
}

func TestSampler(t *testing.T) {
	for _, rate := range []float64{0, -1, 1, 2} {
		if got := sampler(rate).Description(); got != "AlwaysOnSampler" {
			t.Errorf("sampler(%v) = %s, want AlwaysOnSampler", rate, got)
		}
	}
	if got := sampler(0.25).Description(); got == "AlwaysOnSampler" {
		t.Errorf("sampler(0.25) should be ratio based, got %s", got)
	}
}
