package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	created            metric.Int64Counter
	rejected           metric.Int64Counter
	compensated        metric.Int64Counter
	sideEffectFailures metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	var (
		m   metrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created successfully")); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.rejected, err = meter.Int64Counter("orders.rejected",
		metric.WithDescription("Order requests rejected, by reason")); err != nil {
		return nil, errors.Wrap(err, "orders.rejected")
	}
	if m.compensated, err = meter.Int64Counter("orders.compensated",
		metric.WithDescription("Persisted orders rolled back after an inventory failure")); err != nil {
		return nil, errors.Wrap(err, "orders.compensated")
	}
	if m.sideEffectFailures, err = meter.Int64Counter("orders.side_effect_failures",
		metric.WithDescription("Failed best-effort cart or notification calls")); err != nil {
		return nil, errors.Wrap(err, "orders.side_effect_failures")
	}
	return &m, nil
}

func (m *metrics) reject(ctx context.Context, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) sideEffectFailed(ctx context.Context, step string) {
	m.sideEffectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}
