package otel

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds the OpenTelemetry configuration
type Config struct {
	// Enabled controls whether OpenTelemetry is enabled
	Enabled bool `koanf:"enabled"`
	// ServiceName is the name of the service for tracing
	ServiceName string `koanf:"service_name"`
	// ServiceVersion is the version of the service
	ServiceVersion string `koanf:"service_version"`
	// ResourceAttributes are added to every span, parsed from OTEL_RESOURCE_ATTRIBUTES
	ResourceAttributes map[string]string `koanf:"resource_attributes"`
	// Exporter configuration
	Exporter ExporterConfig `koanf:"exporter"`
}

type ExporterConfig struct {
	// Type of exporter: "otlp", "stdout", or "none"
	Type string `koanf:"type"`
	// OTLP exporter configuration (when type is "otlp")
	OTLP OTLPConfig `koanf:"otlp"`
}

type OTLPConfig struct {
	// Endpoint for the OTLP gRPC exporter (e.g., "localhost:4317")
	Endpoint string `koanf:"endpoint"`
	// Headers to send with OTLP requests
	Headers map[string]string `koanf:"headers"`
	// Timeout for OTLP requests
	Timeout time.Duration `koanf:"timeout"`
	// Insecure disables TLS towards the collector
	Insecure bool `koanf:"insecure"`
}

// DefaultConfig returns a default OTEL configuration, honouring the standard OTEL_* environment variables.
func DefaultConfig() Config {
	config := Config{
		Enabled:        false,
		ServiceName:    "ehealth-ingest",
		ServiceVersion: "1.0.0",
		Exporter: ExporterConfig{
			Type: "otlp",
			OTLP: OTLPConfig{
				Endpoint: "localhost:4317",
				Timeout:  10 * time.Second,
				Insecure: true,
			},
		},
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		config.ServiceName = name
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		switch {
		case strings.HasPrefix(endpoint, "https://"):
			config.Exporter.OTLP.Endpoint = strings.TrimPrefix(endpoint, "https://")
			config.Exporter.OTLP.Insecure = false
		case strings.HasPrefix(endpoint, "http://"):
			config.Exporter.OTLP.Endpoint = strings.TrimPrefix(endpoint, "http://")
			config.Exporter.OTLP.Insecure = true
		default:
			config.Exporter.OTLP.Endpoint = endpoint
		}
	}
	if attrs := os.Getenv("OTEL_RESOURCE_ATTRIBUTES"); attrs != "" {
		config.ResourceAttributes = parseResourceAttributes(attrs)
	}
	return config
}

func parseResourceAttributes(value string) map[string]string {
	result := map[string]string{}
	for _, pair := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = strings.TrimSpace(val)
	}
	return result
}

// Validate validates the OTEL configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service name is required when OpenTelemetry is enabled")
	}

	switch c.Exporter.Type {
	case "otlp":
		if c.Exporter.OTLP.Endpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP exporter")
		}
	case "stdout", "none":
	default:
		return fmt.Errorf("unsupported exporter type: %s (supported: otlp, stdout, none)", c.Exporter.Type)
	}

	return nil
}

// TracerProvider holds the global tracer provider and cleanup function
type TracerProvider struct {
	provider *trace.TracerProvider
	cleanup  func(context.Context) error
}

// Initialize sets up OpenTelemetry based on the configuration
func Initialize(ctx context.Context, config Config) (*TracerProvider, error) {
	if !config.Enabled {
		noopProvider := trace.NewTracerProvider()
		otel.SetTracerProvider(noopProvider)
		return &TracerProvider{
			provider: noopProvider,
			cleanup:  func(context.Context) error { return nil },
		}, nil
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(config.ServiceName),
		semconv.ServiceVersionKey.String(config.ServiceVersion),
	}
	for key, value := range config.ResourceAttributes {
		attrs = append(attrs, attribute.String(key, value))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	switch config.Exporter.Type {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(config.Exporter.OTLP.Endpoint),
			otlptracegrpc.WithTimeout(config.Exporter.OTLP.Timeout),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: 1 * time.Second,
				MaxInterval:     5 * time.Second,
				MaxElapsedTime:  30 * time.Second,
			}),
		}
		if len(config.Exporter.OTLP.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(config.Exporter.OTLP.Headers))
		}
		if config.Exporter.OTLP.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	case "none":
		// Traces are collected but not exported
		exporter = nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.Exporter.Type)
	}

	opts := []trace.TracerProviderOption{trace.WithResource(res)}
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{
		provider: tp,
		cleanup: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	}, nil
}

// Shutdown cleanly shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.cleanup != nil {
		return tp.cleanup(ctx)
	}
	return nil
}
