package relay

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type engineMetrics struct {
	messagesSent    metric.Int64Counter
	messagesFailed  metric.Int64Counter
	retries         metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	queueDepth      metric.Int64Gauge
}

func newEngineMetrics(provider metric.MeterProvider) (engineMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("relay.engine")

	var (
		metrics engineMetrics
		err     error
	)

	metrics.messagesSent, err = meter.Int64Counter(
		"relay.messages.sent",
		metric.WithDescription("Number of messages successfully delivered"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return engineMetrics{}, fmt.Errorf("create relay.messages.sent counter: %w", err)
	}

	metrics.messagesFailed, err = meter.Int64Counter(
		"relay.messages.failed",
		metric.WithDescription("Number of messages that exhausted all delivery attempts"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return engineMetrics{}, fmt.Errorf("create relay.messages.failed counter: %w", err)
	}

	metrics.retries, err = meter.Int64Counter(
		"relay.attempts.retried",
		metric.WithDescription("Number of delivery attempts rescheduled for retry"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return engineMetrics{}, fmt.Errorf("create relay.attempts.retried counter: %w", err)
	}

	metrics.deliveryLatency, err = meter.Float64Histogram(
		"relay.delivery.latency",
		metric.WithDescription("Time taken by successful provider calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return engineMetrics{}, fmt.Errorf("create relay.delivery.latency histogram: %w", err)
	}

	metrics.queueDepth, err = meter.Int64Gauge(
		"relay.queue.depth",
		metric.WithDescription("Number of tasks waiting in the queue at the start of a drain pass"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return engineMetrics{}, fmt.Errorf("create relay.queue.depth gauge: %w", err)
	}

	return metrics, nil
}
