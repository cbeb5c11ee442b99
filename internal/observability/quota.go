package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QuotaMetrics records quota decision outcomes. All methods are safe to call
// on a nil receiver, so callers can wire metrics conditionally without
// guarding every call site.
type QuotaMetrics struct {
	decisions metric.Int64Counter
	failOpens metric.Int64Counter
}

// NewQuotaMetrics creates the quota decision instruments on the global meter.
func NewQuotaMetrics() (*QuotaMetrics, error) {
	meter := otel.Meter("user-limiter/quota")

	decisions, err := meter.Int64Counter(
		"quota.decisions",
		metric.WithDescription("Number of quota decisions issued"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	failOpens, err := meter.Int64Counter(
		"quota.fail_open",
		metric.WithDescription("Number of requests answered permissively because evaluation failed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &QuotaMetrics{
		decisions: decisions,
		failOpens: failOpens,
	}, nil
}

// RecordDecision counts one quota decision, labelled by action, outcome, and
// whether the caller was under tightened limits.
func (m *QuotaMetrics) RecordDecision(ctx context.Context, action string, allowed, suspicious bool) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("allowed", allowed),
		attribute.Bool("suspicious", suspicious),
	))
}

// RecordFailOpen counts one request that was answered permissively because
// the decision pipeline errored.
func (m *QuotaMetrics) RecordFailOpen(ctx context.Context) {
	if m == nil {
		return
	}
	m.failOpens.Add(ctx, 1)
}
