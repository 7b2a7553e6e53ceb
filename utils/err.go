package utils

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanRecord marks span as failed with err. The span stays open.
func SpanRecord(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SpanErr(span trace.Span, err error) error {
	SpanRecord(span, err)
	return err
}

func SpanErrf(span trace.Span, format string, args ...interface{}) error {
	return SpanErr(span, fmt.Errorf(format, args...))
}
