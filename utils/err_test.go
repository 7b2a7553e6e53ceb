package utils

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanErrRecordsOnOpenSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	_, span := tp.Tracer("test").Start(context.Background(), "step")

	err := SpanErrf(span, "exchange failed: %w", errors.New("timeout"))
	if err == nil || err.Error() != "exchange failed: timeout" {
		t.Fatalf("unexpected error %v", err)
	}
	if len(rec.Ended()) != 0 {
		t.Fatal("span must stay open")
	}

	span.End()
	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Status().Code != codes.Error {
		t.Fatalf("span status not recorded: %+v", ended)
	}
	if len(ended[0].Events()) != 1 {
		t.Fatalf("expected one error event, got %d", len(ended[0].Events()))
	}
}
