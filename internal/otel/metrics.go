package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the udo instruments.
type Metrics struct {
	OpDuration     metric.Float64Histogram
	ContextRenders metric.Int64Counter
	AutoSaves      metric.Int64Counter
	Handoffs       metric.Int64Counter
	ProjectsLinked metric.Int64Counter
	Reminders      metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.OpDuration, err = meter.Float64Histogram("udo.op.duration",
		metric.WithDescription("Duration of core operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ContextRenders, err = meter.Int64Counter("udo.context.renders",
		metric.WithDescription("Context documents rendered"),
	)
	if err != nil {
		return nil, err
	}

	m.AutoSaves, err = meter.Int64Counter("udo.sessions.autosaves",
		metric.WithDescription("Unattended session saves written"),
	)
	if err != nil {
		return nil, err
	}

	m.Handoffs, err = meter.Int64Counter("udo.handoffs",
		metric.WithDescription("Handoffs marked, manual or automatic"),
	)
	if err != nil {
		return nil, err
	}

	m.ProjectsLinked, err = meter.Int64Counter("udo.projects.linked",
		metric.WithDescription("Projects initialized, migrated or linked in place"),
	)
	if err != nil {
		return nil, err
	}

	m.Reminders, err = meter.Int64Counter("udo.reminders",
		metric.WithDescription("Handoff reminders fired"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveOp records the duration of a named operation. Safe on a nil receiver.
func (m *Metrics) ObserveOp(ctx context.Context, op string, start time.Time) {
	if m == nil || m.OpDuration == nil {
		return
	}
	m.OpDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", op)))
}

// Inc adds one to counter. Safe when counter is nil.
func Inc(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
