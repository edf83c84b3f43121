package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/types"
)

const storageScopeName = "github.com/trellisml/trellis/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in trellis.storage.* metrics; each
// transaction span carries the caller's tag. Use WrapStorage to create one;
// it returns the original backend unchanged when telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("trellis.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("trellis.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("trellis.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStorage) InitMetadataSource(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "InitMetadataSource")
	err := s.inner.InitMetadataSource(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) InitMetadataSourceIfNotExists(ctx context.Context, enableUpgradeMigration bool) error {
	attrs := []attribute.KeyValue{attribute.Bool("trellis.migrate.upgrade", enableUpgradeMigration)}
	ctx, span, t := s.op(ctx, "InitMetadataSourceIfNotExists", attrs...)
	err := s.inner.InitMetadataSourceIfNotExists(ctx, enableUpgradeMigration)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetSchemaVersion(ctx context.Context) (int64, error) {
	ctx, span, t := s.op(ctx, "GetSchemaVersion")
	v, err := s.inner.GetSchemaVersion(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) DowngradeSchema(ctx context.Context, toVersion int64) error {
	attrs := []attribute.KeyValue{attribute.Int64("trellis.migrate.to_version", toVersion)}
	ctx, span, t := s.op(ctx, "DowngradeSchema", attrs...)
	err := s.inner.DowngradeSchema(ctx, toVersion)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ExecuteTransaction(ctx context.Context, opts *types.TransactionOptions, fn func(tx storage.Transaction) error) error {
	var attrs []attribute.KeyValue
	if opts != nil && opts.Tag != "" {
		attrs = append(attrs, attribute.String("trellis.tx.tag", opts.Tag))
	}
	ctx, span, t := s.op(ctx, "ExecuteTransaction", attrs...)
	err := s.inner.ExecuteTransaction(ctx, opts, fn)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
