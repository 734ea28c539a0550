package observability

import (
	"context"
	"time"

	"formrelay/internal/relay"
	"formrelay/internal/reputation"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedClassifier records a span, the lookup latency and the verdict
// of every classification.
type InstrumentedClassifier struct {
	inner    reputation.Classifier
	strategy string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	verdicts metric.Int64Counter
}

// NewInstrumentedClassifier instruments inner, labelling metrics with strategy.
func NewInstrumentedClassifier(inner reputation.Classifier, strategy string) (*InstrumentedClassifier, error) {
	meter := otel.Meter(instrumentationName + "/reputation")

	duration, err := meter.Float64Histogram(
		"reputation.classify.duration",
		metric.WithDescription("Duration of reputation classifications in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	verdicts, err := meter.Int64Counter(
		"reputation.verdicts",
		metric.WithDescription("Number of reputation verdicts by outcome"),
		metric.WithUnit("{verdict}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedClassifier{
		inner:    inner,
		strategy: strategy,
		tracer:   otel.Tracer(instrumentationName + "/reputation"),
		duration: duration,
		verdicts: verdicts,
	}, nil
}

// Classify implements reputation.Classifier.
func (c *InstrumentedClassifier) Classify(ctx context.Context, address string) reputation.Verdict {
	ctx, span := c.tracer.Start(ctx, "reputation.Classify",
		trace.WithAttributes(attribute.String("reputation.strategy", c.strategy)),
	)
	defer span.End()

	start := time.Now()
	verdict := c.inner.Classify(ctx, address)

	attrs := metric.WithAttributes(
		attribute.String("strategy", c.strategy),
		attribute.String("verdict", verdict.String()),
	)
	c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	c.verdicts.Add(ctx, 1, attrs)
	span.SetAttributes(attribute.String("reputation.verdict", verdict.String()))
	return verdict
}

// InstrumentedForwarder records a span, the latency and the outcome of every
// webhook delivery.
type InstrumentedForwarder struct {
	inner      relay.Forwarder
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	deliveries metric.Int64Counter
}

// NewInstrumentedForwarder instruments inner using the global providers.
func NewInstrumentedForwarder(inner relay.Forwarder) (*InstrumentedForwarder, error) {
	meter := otel.Meter(instrumentationName + "/relay")

	duration, err := meter.Float64Histogram(
		"relay.delivery.duration",
		metric.WithDescription("Duration of webhook deliveries in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter(
		"relay.deliveries",
		metric.WithDescription("Number of webhook delivery attempts by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedForwarder{
		inner:      inner,
		tracer:     otel.Tracer(instrumentationName + "/relay"),
		duration:   duration,
		deliveries: deliveries,
	}, nil
}

// Forward implements relay.Forwarder.
func (f *InstrumentedForwarder) Forward(ctx context.Context, payload []byte) (int, error) {
	ctx, span := f.tracer.Start(ctx, "relay.Forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("relay.payload_bytes", len(payload))),
	)
	defer span.End()

	start := time.Now()
	status, err := f.inner.Forward(ctx, payload)

	outcome := "delivered"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	f.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	f.deliveries.Add(ctx, 1, attrs)
	return status, err
}

// AdmissionMetrics counts admission outcomes. It satisfies
// admission.Observer.
type AdmissionMetrics struct {
	outcomes metric.Int64Counter
}

// NewAdmissionMetrics creates the outcome counter.
func NewAdmissionMetrics() (*AdmissionMetrics, error) {
	outcomes, err := otel.Meter(instrumentationName+"/admission").Int64Counter(
		"admission.outcomes",
		metric.WithDescription("Number of submissions by admission outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}
	return &AdmissionMetrics{outcomes: outcomes}, nil
}

// ObserveAdmission adds one submission with the given outcome.
func (m *AdmissionMetrics) ObserveAdmission(ctx context.Context, outcome string) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Sizer is anything that can report how many items it holds.
type Sizer interface {
	Len() int
}

// RegisterStateGauges exposes the delivery queue depth and the number of
// sources under cooldown as observable gauges.
func RegisterStateGauges(queue, cooldowns Sizer) error {
	meter := otel.Meter(instrumentationName + "/state")

	depth, err := meter.Int64ObservableGauge(
		"relay.queue.depth",
		metric.WithDescription("Jobs waiting for delivery, including the one in flight"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return err
	}

	tracked, err := meter.Int64ObservableGauge(
		"cooldown.tracked_sources",
		metric.WithDescription("Source addresses holding a cooldown record"),
		metric.WithUnit("{source}"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, int64(queue.Len()))
		o.ObserveInt64(tracked, int64(cooldowns.Len()))
		return nil
	}, depth, tracked)
	return err
}
