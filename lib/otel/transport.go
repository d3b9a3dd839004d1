package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTransport wraps the base transport so every outgoing request gets a client span and
// carries the W3C trace context. A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, component string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return component + " " + r.Method + " " + r.URL.Path
		}),
	)
}
