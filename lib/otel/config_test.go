package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "disabled config is always valid",
			config: Config{Enabled: false, Exporter: ExporterConfig{Type: "bogus"}},
		},
		{
			name:   "valid stdout config",
			config: Config{Enabled: true, ServiceName: "test-service", Exporter: ExporterConfig{Type: "stdout"}},
		},
		{
			name: "valid otlp config",
			config: Config{Enabled: true, ServiceName: "test-service", Exporter: ExporterConfig{
				Type: "otlp",
				OTLP: OTLPConfig{Endpoint: "localhost:4317"},
			}},
		},
		{
			name:    "missing service name",
			config:  Config{Enabled: true, Exporter: ExporterConfig{Type: "stdout"}},
			wantErr: "service name is required",
		},
		{
			name:    "invalid exporter type",
			config:  Config{Enabled: true, ServiceName: "test-service", Exporter: ExporterConfig{Type: "invalid"}},
			wantErr: "unsupported exporter type: invalid",
		},
		{
			name:    "otlp without endpoint",
			config:  Config{Enabled: true, ServiceName: "test-service", Exporter: ExporterConfig{Type: "otlp"}},
			wantErr: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "")

	config := DefaultConfig()

	assert.False(t, config.Enabled)
	assert.Equal(t, "ehealth-ingest", config.ServiceName)
	assert.Equal(t, "otlp", config.Exporter.Type)
	assert.Equal(t, "localhost:4317", config.Exporter.OTLP.Endpoint)
	assert.Equal(t, 10*time.Second, config.Exporter.OTLP.Timeout)
	assert.True(t, config.Exporter.OTLP.Insecure)
	assert.Empty(t, config.ResourceAttributes)
	require.NoError(t, config.Validate())
}

func TestDefaultConfig_WithEnvironmentVariables(t *testing.T) {
	t.Run("service name", func(t *testing.T) {
		t.Setenv("OTEL_SERVICE_NAME", "custom-service")
		assert.Equal(t, "custom-service", DefaultConfig().ServiceName)
	})
	t.Run("https endpoint", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://otel.example.com:4317")
		config := DefaultConfig()
		assert.Equal(t, "otel.example.com:4317", config.Exporter.OTLP.Endpoint)
		assert.False(t, config.Exporter.OTLP.Insecure)
	})
	t.Run("http endpoint", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel.example.com:4317")
		config := DefaultConfig()
		assert.Equal(t, "otel.example.com:4317", config.Exporter.OTLP.Endpoint)
		assert.True(t, config.Exporter.OTLP.Insecure)
	})
	t.Run("resource attributes with spaces", func(t *testing.T) {
		t.Setenv("OTEL_RESOURCE_ATTRIBUTES", " key1 = value1 , key2 = value2 ,broken")
		config := DefaultConfig()
		assert.Equal(t, map[string]string{"key1": "value1", "key2": "value2"}, config.ResourceAttributes)
	})
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		provider, err := Initialize(ctx, Config{Enabled: false})

		require.NoError(t, err)
		require.NotNil(t, provider)
		assert.NotNil(t, otel.GetTracerProvider())
		assert.NoError(t, provider.Shutdown(ctx))
	})
	t.Run("stdout exporter", func(t *testing.T) {
		provider, err := Initialize(ctx, Config{
			Enabled:            true,
			ServiceName:        "test-service",
			ServiceVersion:     "1.0.0",
			ResourceAttributes: map[string]string{"environment": "test"},
			Exporter:           ExporterConfig{Type: "stdout"},
		})

		require.NoError(t, err)
		_, span := otel.GetTracerProvider().Tracer("test").Start(ctx, "test-span")
		span.End()
		assert.NoError(t, provider.Shutdown(ctx))
	})
	t.Run("none exporter", func(t *testing.T) {
		provider, err := Initialize(ctx, Config{Enabled: true, ServiceName: "test-service", Exporter: ExporterConfig{Type: "none"}})

		require.NoError(t, err)
		assert.NoError(t, provider.Shutdown(ctx))
	})
	t.Run("unsupported exporter", func(t *testing.T) {
		_, err := Initialize(ctx, Config{Enabled: true, ServiceName: "test-service", Exporter: ExporterConfig{Type: "zipkin"}})

		require.EqualError(t, err, "unsupported exporter type: zipkin")
	})
}

func TestTracerProvider_Shutdown(t *testing.T) {
	provider := &TracerProvider{provider: trace.NewTracerProvider()}
	assert.NoError(t, provider.Shutdown(context.Background()))

	shutdownCalled := false
	provider = &TracerProvider{
		provider: trace.NewTracerProvider(),
		cleanup: func(ctx context.Context) error {
			shutdownCalled = true
			return nil
		},
	}
	assert.NoError(t, provider.Shutdown(context.Background()))
	assert.True(t, shutdownCalled)
}
