package otel

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	runtimeotel "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/imtaco/room-relay/internal/log"
)

type ShutdownFunc func(context.Context) error

type providers struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Init installs the global tracer and meter providers. Disabled signals get
// a provider without exporters, so instruments created in package init stay
// cheap no-ops.
func Init(ctx context.Context, config *Config, logger *log.Logger) (ShutdownFunc, error) {
	logger.Info("OTEL configuration",
		log.Bool("tracing_enabled", config.TracingEnabled),
		log.Bool("metrics_enabled", config.MetricsEnabled),
		log.Bool("go_metrics_enabled", config.RuntimeMetricsEnabled),
		log.String("endpoint", config.Endpoint),
		log.String("service_name", config.ServiceName),
		log.String("instance_id", config.InstanceID))

	res, err := newResource(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	p := &providers{}
	if config.TracingEnabled {
		if p.tracerProvider, err = initTracing(ctx, config, res); err != nil {
			return nil, errors.Wrap(err, "failed to initialize tracing")
		}
	} else {
		p.tracerProvider = sdktrace.NewTracerProvider()
	}

	if !config.MetricsEnabled {
		p.meterProvider = sdkmetric.NewMeterProvider()
		return p.shutdown, nil
	}

	if p.meterProvider, err = initMetrics(ctx, config, res); err != nil {
		return nil, errors.Wrap(err, "failed to initialize metrics")
	}
	if config.RuntimeMetricsEnabled {
		if err := runtimeotel.Start(runtimeotel.WithMeterProvider(p.meterProvider)); err != nil {
			return nil, errors.Wrap(err, "failed to start runtime metrics")
		}
	}
	return p.shutdown, nil
}

// newResource also picks up OTEL_RESOURCE_ATTRIBUTES and host details.
func newResource(ctx context.Context, config *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
	}
	if config.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(config.ServiceVersion))
	}
	if config.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(config.InstanceID))
	}
	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithHost(),
	)
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func initTracing(ctx context.Context, config *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithTimeout(config.Timeout),
	}
	if config.Insecure {
		opts = append(opts,
			otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create OTLP trace exporter")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(config.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider, nil
}

func initMetrics(ctx context.Context, config *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.Endpoint),
		otlpmetricgrpc.WithTimeout(config.Timeout),
	}
	if config.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()),
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create OTLP metric exporter")
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(config.MetricsExportInterval),
		)),
	)
	// instruments made in package init delegate to the new provider
	otel.SetMeterProvider(provider)
	return provider, nil
}

func (p *providers) shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "tracer provider"))
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "meter provider"))
	}
	return stderrors.Join(errs...)
}
