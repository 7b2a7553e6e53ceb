package kernel

import (
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
)

func (art *AppRuntime) SetupOtel() (func(), error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(art.ServiceName),
			semconv.ServiceVersion(art.ServiceVersion),
			semconv.DeploymentEnvironment(art.DeploymentEnvironment),
		))
	if err != nil {
		return nil, err
	}

	var tracerProvider *trace.TracerProvider
	if art.TracingEnabled {
		traceExporter, err := otlptracehttp.New(art.Context,
			otlptracehttp.WithEndpoint(art.JaegerEndpoint),
			otlptracehttp.WithInsecure(), // TODO: TLS once the collector terminates it
		)
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		tracerProvider = trace.NewTracerProvider(
			trace.WithResource(res),
			trace.WithBatcher(traceExporter),
		)
		otel.SetTracerProvider(tracerProvider)
	}

	reader, err := art.metricReader()
	if err != nil {
		return nil, err
	}
	metricProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(metricProvider)

	// Propagation
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Runtime metrics
	if err := runtime.Start(); err != nil {
		return nil, fmt.Errorf("starting runtime metrics: %w", err)
	}

	art.Logger.Info().
		Bool("tracing", art.TracingEnabled).
		Str("metrics", art.MetricsExporter).
		Msg("telemetry configured")

	return func() {
		if tracerProvider != nil {
			_ = tracerProvider.Shutdown(art.Context)
		}
		_ = metricProvider.Shutdown(art.Context)
	}, nil
}

func (art *AppRuntime) metricReader() (sdkmetric.Reader, error) {
	switch art.MetricsExporter {
	case "otlphttp":
		exp, err := otlpmetrichttp.New(art.Context,
			otlpmetrichttp.WithEndpoint(art.OtlpMetricsEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating otlp/http metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case "otlpgrpc":
		exp, err := otlpmetricgrpc.New(art.Context,
			otlpmetricgrpc.WithEndpoint(art.OtlpMetricsEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating otlp/grpc metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	default:
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		return exp, nil
	}
}
