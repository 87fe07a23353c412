package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts the pipeline's externally interesting events. A nil
// receiver is a no-op so tests can skip instrumentation.
type Metrics struct {
	sessions   metric.Int64Counter
	turns      metric.Int64Counter
	partials   metric.Int64Counter
	finals     metric.Int64Counter
	deliveries metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/vettalabs/vetta-core/runtime")

	sessions, err := meter.Int64Counter("vetta.sessions.started",
		metric.WithDescription("Interview sessions started"))
	if err != nil {
		return nil, err
	}
	turns, err := meter.Int64Counter("vetta.transcript.turns_applied",
		metric.WithDescription("Turn updates applied to the aggregator"))
	if err != nil {
		return nil, err
	}
	partials, err := meter.Int64Counter("vetta.evaluations.partial",
		metric.WithDescription("Partial evaluation attempts"))
	if err != nil {
		return nil, err
	}
	finals, err := meter.Int64Counter("vetta.evaluations.final",
		metric.WithDescription("Final evaluation attempts"))
	if err != nil {
		return nil, err
	}
	deliveries, err := meter.Int64Counter("vetta.reports.delivered",
		metric.WithDescription("Report delivery attempts"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessions:   sessions,
		turns:      turns,
		partials:   partials,
		finals:     finals,
		deliveries: deliveries,
	}, nil
}

func resultAttr(ok bool) metric.AddOption {
	result := "success"
	if !ok {
		result = "failure"
	}
	return metric.WithAttributes(attribute.String("result", result))
}

func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1)
}

func (m *Metrics) TurnApplied(ctx context.Context) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1)
}

func (m *Metrics) PartialEvaluation(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.partials.Add(ctx, 1, resultAttr(ok))
}

func (m *Metrics) FinalEvaluation(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.finals.Add(ctx, 1, resultAttr(ok))
}

func (m *Metrics) ReportDelivered(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, resultAttr(ok))
}
