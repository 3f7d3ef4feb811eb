package native

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "longport/native"

type metrics struct {
	calls   metric.Int64Counter
	pushes  metric.Int64Counter
	handles metric.Int64UpDownCounter
	arenas  metric.Int64UpDownCounter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	calls, err := meter.Int64Counter("native.async.calls",
		metric.WithDescription("One-shot native calls by outcome"))
	if err != nil {
		return nil, fmt.Errorf("native.async.calls: %w", err)
	}
	pushes, err := meter.Int64Counter("native.push.events",
		metric.WithDescription("Push events delivered to callbacks"))
	if err != nil {
		return nil, fmt.Errorf("native.push.events: %w", err)
	}
	handles, err := meter.Int64UpDownCounter("native.handles.live",
		metric.WithDescription("Live reference-counted native handles"))
	if err != nil {
		return nil, fmt.Errorf("native.handles.live: %w", err)
	}
	arenas, err := meter.Int64UpDownCounter("native.arena.inflight",
		metric.WithDescription("Envelope arenas currently lent to callbacks"))
	if err != nil {
		return nil, fmt.Errorf("native.arena.inflight: %w", err)
	}
	return &metrics{calls: calls, pushes: pushes, handles: handles, arenas: arenas}, nil
}

func (m *metrics) call(op string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.calls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) push(event string) {
	m.pushes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *metrics) handle(kind string, delta int64) {
	m.handles.Add(context.Background(), delta, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *metrics) arena(delta int64) {
	m.arenas.Add(context.Background(), delta)
}
