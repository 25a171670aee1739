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

// Metrics exposes application-level instruments.
type Metrics struct {
	profileWrites   metric.Int64Counter
	profileDuration metric.Float64Histogram
	imageUploads    metric.Int64Counter
	imageBytes      metric.Int64Histogram
	invalidations   metric.Int64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "directory"
	}
	meter := provider.Meter(name)

	profileWrites, err := meter.Int64Counter("directory_profile_writes_total")
	if err != nil {
		return nil, err
	}
	profileDuration, err := meter.Float64Histogram("directory_profile_write_duration_seconds")
	if err != nil {
		return nil, err
	}
	imageUploads, err := meter.Int64Counter("directory_image_uploads_total")
	if err != nil {
		return nil, err
	}
	imageBytes, err := meter.Int64Histogram("directory_image_upload_bytes")
	if err != nil {
		return nil, err
	}
	invalidations, err := meter.Int64Counter("directory_view_invalidations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		profileWrites:   profileWrites,
		profileDuration: profileDuration,
		imageUploads:    imageUploads,
		imageBytes:      imageBytes,
		invalidations:   invalidations,
	}, nil
}

// RecordProfileWrite counts one create/update attempt and its outcome.
// stage is empty on success and names the failing step otherwise.
func (m *Metrics) RecordProfileWrite(ctx context.Context, operation, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if stage != "" {
		result = "failure"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("result", result),
		attribute.String("stage", strings.TrimSpace(stage)),
	)
	m.profileWrites.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.profileDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordImageUpload counts an object-store upload attempt.
func (m *Metrics) RecordImageUpload(ctx context.Context, contentType string, size int, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	attrs := FilterAttributes(
		attribute.String("content_type", strings.TrimSpace(contentType)),
		attribute.String("result", result),
	)
	m.imageUploads.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err == nil {
		m.imageBytes.Record(ctx, int64(size), metric.WithAttributes(attrs...))
	}
}

// RecordInvalidation counts a view invalidation trigger.
func (m *Metrics) RecordInvalidation(ctx context.Context, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.invalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
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

// Business and owner ids never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"operation":    {},
	"result":       {},
	"stage":        {},
	"content_type": {},
	"endpoint":     {},
	"status_code":  {},
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
