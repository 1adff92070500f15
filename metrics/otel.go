package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTelSink publishes counters, gauges, and timers as OpenTelemetry
// instruments, exported over OTLP/gRPC. cmd/gator does not construct
// it: a gator run always reports through LoggerSink.
type OTelSink struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
	gauges   map[string]metric.Float64Gauge
	timers   map[string]metric.Float64Histogram
}

// NewOTelSink dials endpoint (an OTLP/gRPC collector address) and returns
// a ready OTelSink. Callers must call Close on shutdown to flush pending
// exports.
func NewOTelSink(ctx context.Context, endpoint string) (*OTelSink, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("metrics: dial otlp collector %s: %w", endpoint, err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("metrics: build otlp exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)

	return &OTelSink{
		provider: provider,
		meter:    provider.Meter("gator"),
		counters: make(map[string]metric.Int64Counter),
		gauges:   make(map[string]metric.Float64Gauge),
		timers:   make(map[string]metric.Float64Histogram),
	}, nil
}

func (s *OTelSink) counter(name string) metric.Int64Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	c, _ := s.meter.Int64Counter(name)
	s.counters[name] = c
	return c
}

func (s *OTelSink) gauge(name string) metric.Float64Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[name]; ok {
		return g
	}
	g, _ := s.meter.Float64Gauge(name)
	s.gauges[name] = g
	return g
}

func (s *OTelSink) timer(name string) metric.Float64Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.timers[name]; ok {
		return h
	}
	h, _ := s.meter.Float64Histogram(name, metric.WithUnit("ms"))
	s.timers[name] = h
	return h
}

func attrsFromTags(tags map[string]string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return metric.WithAttributes(attrs...)
}

func (s *OTelSink) Counter(ctx context.Context, name string, value int64, tags map[string]string) {
	s.counter(name).Add(ctx, value, attrsFromTags(tags))
}

func (s *OTelSink) Gauge(ctx context.Context, name string, value float64, tags map[string]string) {
	s.gauge(name).Record(ctx, value, attrsFromTags(tags))
}

func (s *OTelSink) Timer(ctx context.Context, name string, d time.Duration, tags map[string]string) {
	s.timer(name).Record(ctx, float64(d.Milliseconds()), attrsFromTags(tags))
}

func (s *OTelSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown otel provider: %w", err)
	}
	return nil
}
