package kernel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type AppDiagnostic struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	RequestCounter metric.Int64Counter
	ErrorCounter   metric.Int64Counter

	PaymentsInitiated metric.Int64Counter
	PaymentsFinished  metric.Int64Counter
	WebhookEvents     metric.Int64Counter
}

// NewDiagnostic binds to the global otel providers. Instruments created here
// follow the providers installed later by SetupOtel.
func NewDiagnostic(serviceName string) (*AppDiagnostic, error) {
	diag := &AppDiagnostic{
		Tracer: otel.Tracer(serviceName + "-tracer"),
		Meter:  otel.Meter(serviceName + "-meter"),
	}

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&diag.RequestCounter, "http_requests_total", "Total number of HTTP requests"},
		{&diag.ErrorCounter, "http_errors_total", "Total number of HTTP requests answered with an error"},
		{&diag.PaymentsInitiated, "payments_initiated_total", "Payments accepted for processing"},
		{&diag.PaymentsFinished, "payments_finished_total", "Payments that reached a terminal status"},
		{&diag.WebhookEvents, "webhook_events_total", "Inbound webhook deliveries by type and outcome"},
	}
	for _, c := range counters {
		*c.dst, err = diag.Meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}
	return diag, nil
}

func (diag *AppDiagnostic) BeginTracing(ctx context.Context, spanName string) (trace.Span, context.Context) {
	ctx, span := diag.Tracer.Start(ctx, spanName)
	return span, ctx
}
