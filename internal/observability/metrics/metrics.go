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

// Metrics exposes order lifecycle instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	ordersCreated     metric.Int64Counter
	transitions       metric.Int64Counter
	settlements       metric.Int64Counter
	closings          metric.Int64Counter
	realtimeEvents    metric.Int64Counter
	realtimeDropped   metric.Int64Counter
	concurrencyLosses metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "comanda"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.ordersCreated, "comanda_orders_created_total", "Orders opened by waitstaff."},
		{&m.transitions, "comanda_order_transitions_total", "Accepted order state transitions."},
		{&m.settlements, "comanda_settlements_total", "Orders settled, by payment method."},
		{&m.closings, "comanda_closings_total", "Cash closings persisted, by variance sign."},
		{&m.realtimeEvents, "comanda_realtime_events_total", "Lifecycle events delivered to an audience stream."},
		{&m.realtimeDropped, "comanda_realtime_events_dropped_total", "Lifecycle events dropped for slow subscribers."},
		{&m.concurrencyLosses, "comanda_concurrency_conflicts_total", "Writes rejected because a concurrent write won."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	return m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1)
}

func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSettlement(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.settlements.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("method", method))...))
}

// RecordClosing counts a closing under "exact", "surplus" or "shortage".
func (m *Metrics) RecordClosing(ctx context.Context, variance string) {
	if m == nil {
		return
	}
	m.closings.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("variance", variance))...))
}

func (m *Metrics) RecordRealtimeDelivered(ctx context.Context, audience string, delivered, dropped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("audience", audience))...)
	if delivered > 0 {
		m.realtimeEvents.Add(ctx, int64(delivered), attrs)
	}
	if dropped > 0 {
		m.realtimeDropped.Add(ctx, int64(dropped), attrs)
	}
}

func (m *Metrics) RecordConcurrencyConflict(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	m.concurrencyLosses.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("resource", resource))...))
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
	"from":        {},
	"to":          {},
	"method":      {},
	"variance":    {},
	"audience":    {},
	"resource":    {},
	"route":       {},
	"status_code": {},
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
