package otel

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error marks the span as failed with err and returns err, so it can wrap a return statement.
func Error(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err, trace.WithAttributes(attribute.String(ErrorType, fmt.Sprintf("%T", err))))
	span.SetStatus(codes.Error, err.Error())
	return err
}
