package observability

import (
	"context"
	"time"

	"github.com/rozmerigpt/user-limiter/internal/identity"
	"github.com/rozmerigpt/user-limiter/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation. Network addresses are
// recorded as digests, never raw, so traces stay free of personal data.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("user-limiter/storage")
	meter := otel.Meter("user-limiter/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) GetCount(ctx context.Context, key string) (int, error) {
	ctx, span := s.startSpan(ctx, "GetCount", attribute.String("counter.key", key))
	start := time.Now()
	result, err := s.inner.GetCount(ctx, key)
	s.record(ctx, span, "GetCount", start, err)
	return result, err
}

func (s *InstrumentedStorage) SetCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "SetCount",
		attribute.String("counter.key", key),
		attribute.Int("counter.value", count),
	)
	start := time.Now()
	err := s.inner.SetCount(ctx, key, count, ttl)
	s.record(ctx, span, "SetCount", start, err)
	return err
}

func (s *InstrumentedStorage) AddIdentity(ctx context.Context, address, userID string, ttl time.Duration) (int, error) {
	ctx, span := s.startSpan(ctx, "AddIdentity",
		attribute.String("address.digest", identity.Digest(address)),
	)
	start := time.Now()
	result, err := s.inner.AddIdentity(ctx, address, userID, ttl)
	s.record(ctx, span, "AddIdentity", start, err)
	return result, err
}

func (s *InstrumentedStorage) Sweep(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Sweep")
	start := time.Now()
	err := s.inner.Sweep(ctx)
	s.record(ctx, span, "Sweep", start, err)
	return err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
