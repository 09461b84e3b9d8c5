package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded for every RPC against the event
// store: how long each call took, how many succeeded or failed, and how
// many Subscribe streams are open. EventsAppended and EventsDelivered are
// created here, but nothing in this module records to them.
type Metrics struct {
	RequestDuration metric.Float64Histogram
	RequestTotal    metric.Int64Counter
	RequestErrors   metric.Int64Counter

	EventsAppended  metric.Int64Counter
	EventsDelivered metric.Int64Counter

	ActiveSubscriptions metric.Int64UpDownCounter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.RequestDuration, err = meter.Float64Histogram(
		"eventstore.request.duration",
		metric.WithDescription("RPC duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating request.duration: %w", err)
	}

	if m.RequestTotal, err = meter.Int64Counter(
		"eventstore.request.total",
		metric.WithDescription("Total RPCs served"),
	); err != nil {
		return nil, fmt.Errorf("creating request.total: %w", err)
	}

	if m.RequestErrors, err = meter.Int64Counter(
		"eventstore.request.errors",
		metric.WithDescription("Total RPCs that returned an error"),
	); err != nil {
		return nil, fmt.Errorf("creating request.errors: %w", err)
	}

	if m.EventsAppended, err = meter.Int64Counter(
		"eventstore.events.appended",
		metric.WithDescription("Total events committed via Append"),
	); err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	if m.EventsDelivered, err = meter.Int64Counter(
		"eventstore.events.delivered",
		metric.WithDescription("Total events delivered to ReadStream/Subscribe callers"),
	); err != nil {
		return nil, fmt.Errorf("creating events.delivered: %w", err)
	}

	if m.ActiveSubscriptions, err = meter.Int64UpDownCounter(
		"eventstore.subscriptions.active",
		metric.WithDescription("Currently open Subscribe streams"),
	); err != nil {
		return nil, fmt.Errorf("creating subscriptions.active: %w", err)
	}

	return m, nil
}

// RecordRequest records one RPC's outcome and duration.
func (m *Metrics) RecordRequest(ctx context.Context, procedure string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("procedure", procedure))
	m.RequestDuration.Record(ctx, duration.Seconds(), attrs)
	m.RequestTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.RequestErrors.Add(ctx, 1, attrs)
	}
}
