package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("class", "webhook"),
		attribute.String("email", "a@b.com"),
		attribute.String("outcome", "created"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "email" {
			t.Fatalf("expected email label to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookEvent(context.Background(), "META", "created")
	m.RecordRateLimitDenied(context.Background(), "webhook")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "opensmile"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordEnrichment(context.Background(), "completed")
	m.RecordRateLimitAllowed(context.Background(), "lead_search")
}
