package otel

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandlerWithTracing wraps an API handler in a server span. The entity type of routes with an {entity} wildcard
// is recorded on the span, 4xx and 5xx responses mark it as failed.
func HandlerWithTracing(tracer trace.Tracer, operationName string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attrs := []attribute.KeyValue{
			attribute.String(OperationName, operationName),
			attribute.String(HTTPMethod, r.Method),
			attribute.String(HTTPURL, r.URL.String()),
		}
		if r.Pattern != "" {
			attrs = append(attrs, attribute.String(HTTPRoute, r.Pattern))
		}
		if entity := r.PathValue("entity"); entity != "" {
			attrs = append(attrs, attribute.String(IngestEntity, entity))
		}
		ctx, span := tracer.Start(r.Context(), operationName, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r.WithContext(ctx))

		span.SetAttributes(attribute.Int(HTTPStatusCode, recorder.status))
		if recorder.status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
