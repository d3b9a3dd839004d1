package logging

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// AppendCtx returns a context whose logger carries the given field, so every entry logged through log.Ctx(ctx)
// includes it. The field replaces an earlier value with the same key.
func AppendCtx(parent context.Context, key string, value string) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	logger := log.Ctx(parent).With().Str(key, value).Logger()
	return logger.WithContext(parent)
}

// WithTrace adds the trace and span ID of the active span (if any) to the context logger.
func WithTrace(ctx context.Context) context.Context {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ctx
	}
	spanCtx := span.SpanContext()
	logger := log.Ctx(ctx).With().
		Str(FieldTraceID, spanCtx.TraceID().String()).
		Str(FieldSpanID, spanCtx.SpanID().String()).
		Logger()
	return logger.WithContext(ctx)
}

// Setup configures the global logger: level, timestamp, and using it as default for contexts without a logger.
func Setup(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}
