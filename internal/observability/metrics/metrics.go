package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the domain counters. A nil *Metrics records nothing, so
// services take it as an optional dependency.
type Metrics struct {
	webhookEvents metric.Int64Counter
	enrichment    metric.Int64Counter
	rateLimit     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	log.Info("otlp metrics enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New registers the domain counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "opensmile"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.webhookEvents, "opensmile_webhook_events_total", "Lead webhook deliveries by provider and outcome."},
		{&m.enrichment, "opensmile_enrichment_runs_total", "Interaction enrichment attempts by outcome."},
		{&m.rateLimit, "opensmile_rate_limit_decisions_total", "Rate limiter decisions by class."},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil || counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// RecordWebhookEvent counts one terminal webhook outcome (created, duplicate, invalid_signature, ...).
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.webhookEvents, attribute.String("provider", provider), attribute.String("outcome", outcome))
}

// RecordEnrichment counts post-processing attempts by outcome.
func (m *Metrics) RecordEnrichment(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.enrichment, attribute.String("outcome", outcome))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimit, attribute.String("class", class), attribute.String("decision", "allowed"))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimit, attribute.String("class", class), attribute.String("decision", "denied"))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"class":       {},
	"decision":    {},
	"outcome":     {},
	"provider":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
