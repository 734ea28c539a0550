package observability

import (
	"context"
	"time"

	"formrelay/internal/journal"
	"formrelay/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedJournal wraps a journal.Journal with spans, a latency histogram
// and an error counter per operation.
type InstrumentedJournal struct {
	inner    journal.Journal
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ journal.Journal = (*InstrumentedJournal)(nil)

// NewInstrumentedJournal instruments inner using the global providers.
func NewInstrumentedJournal(inner journal.Journal) (*InstrumentedJournal, error) {
	meter := otel.Meter(instrumentationName + "/journal")

	duration, err := meter.Float64Histogram(
		"journal.operation.duration",
		metric.WithDescription("Duration of journal operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"journal.operation.errors",
		metric.WithDescription("Number of failed journal operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedJournal{
		inner:    inner,
		tracer:   otel.Tracer(instrumentationName + "/journal"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (j *InstrumentedJournal) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return j.tracer.Start(ctx, "journal."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("journal.operation", operation),
		}, attrs...)...),
	)
}

func (j *InstrumentedJournal) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	j.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		j.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (j *InstrumentedJournal) Record(ctx context.Context, d models.Delivery) error {
	ctx, span := j.startSpan(ctx, "Record",
		attribute.String("job_id", d.JobID),
		attribute.String("outcome", d.Outcome),
	)
	start := time.Now()
	err := j.inner.Record(ctx, d)
	j.record(ctx, span, "Record", start, err)
	return err
}

func (j *InstrumentedJournal) Recent(ctx context.Context, limit int) ([]models.Delivery, error) {
	ctx, span := j.startSpan(ctx, "Recent", attribute.Int("limit", limit))
	start := time.Now()
	result, err := j.inner.Recent(ctx, limit)
	j.record(ctx, span, "Recent", start, err)
	return result, err
}

func (j *InstrumentedJournal) Ping(ctx context.Context) error {
	ctx, span := j.startSpan(ctx, "Ping")
	start := time.Now()
	err := j.inner.Ping(ctx)
	j.record(ctx, span, "Ping", start, err)
	return err
}

// Close is not instrumented.
func (j *InstrumentedJournal) Close() error {
	return j.inner.Close()
}
