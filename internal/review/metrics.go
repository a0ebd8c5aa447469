package review

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/apreview/internal/review"

// Metrics provides OpenTelemetry metrics for review sessions.
type Metrics struct {
	sessionsCreated  metric.Int64Counter
	answersApplied   metric.Int64Counter
	blocksGrown      metric.Int64Counter
	submissions      metric.Int64Counter
	deliveries       metric.Int64Counter
	submitDuration   metric.Float64Histogram
	deliveryDuration metric.Float64Histogram
}

// NewMetrics creates the review instruments. If meter is nil, uses the
// global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.sessionsCreated, err = meter.Int64Counter(
		"apreview.review.sessions.created.total",
		metric.WithDescription("Total number of review sessions started"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.answersApplied, err = meter.Int64Counter(
		"apreview.review.answers.applied.total",
		metric.WithDescription("Total number of answers applied to sessions"),
		metric.WithUnit("{answer}"),
	)
	if err != nil {
		return nil, err
	}

	m.blocksGrown, err = meter.Int64Counter(
		"apreview.review.blocks.grown.total",
		metric.WithDescription("Total number of repeated blocks added, by family"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, err
	}

	m.submissions, err = meter.Int64Counter(
		"apreview.review.submissions.total",
		metric.WithDescription("Total number of submit attempts, by outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	m.deliveries, err = meter.Int64Counter(
		"apreview.review.deliveries.total",
		metric.WithDescription("Total number of webhook deliveries, by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	m.submitDuration, err = meter.Float64Histogram(
		"apreview.review.submit.duration.seconds",
		metric.WithDescription("Duration of the submit pass in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.deliveryDuration, err = meter.Float64Histogram(
		"apreview.review.delivery.duration.seconds",
		metric.WithDescription("Duration of one webhook post in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

func (m *Metrics) recordApplied(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.answersApplied.Add(ctx, int64(n))
}

func (m *Metrics) recordGrowth(ctx context.Context, family string) {
	if m == nil {
		return
	}
	m.blocksGrown.Add(ctx, 1, metric.WithAttributes(attribute.String("family", family)))
}

func (m *Metrics) recordSubmit(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.submissions.Add(ctx, 1, attrs)
	m.submitDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) recordDelivery(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryDuration.Record(ctx, d.Seconds(), attrs)
}
