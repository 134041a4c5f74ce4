package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func attrOperationName(name string) attribute.KeyValue {
	if name == "" {
		name = "anonymous"
	}
	return attribute.String("operation.name", name)
}

func attrSubgraph(name string) attribute.KeyValue {
	return attribute.String("subgraph.name", name)
}

// gatewayMetrics records the request and subgraph-fetch duration
// histograms. Instruments come from the global MeterProvider; when no SDK
// has been installed they are safe no-ops, so metrics collection is
// opt-in alongside InitTracer.
type gatewayMetrics struct {
	requestDuration metric.Float64Histogram
	fetchDuration   metric.Float64Histogram
}

func newGatewayMetrics(serviceName string) (*gatewayMetrics, error) {
	meter := otel.Meter(serviceName)

	requestDuration, err := meter.Float64Histogram(
		"gateway.request.duration",
		metric.WithDescription("end-to-end duration of one GraphQL request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"gateway.subgraph.fetch.duration",
		metric.WithDescription("duration of one subgraph fetch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &gatewayMetrics{requestDuration: requestDuration, fetchDuration: fetchDuration}, nil
}

func (m *gatewayMetrics) recordRequest(ctx context.Context, start time.Time, operationName string) {
	m.requestDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attrOperationName(operationName)))
}

func (m *gatewayMetrics) recordFetch(ctx context.Context, start time.Time, subgraph string) {
	m.fetchDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attrSubgraph(subgraph)))
}
