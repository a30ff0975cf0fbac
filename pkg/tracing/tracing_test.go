package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan(t *testing.T) {
	t.Cleanup(func() { SetTracer(nil) })

	t.Run("without tracer", func(t *testing.T) {
		SetTracer(nil)
		ctx, span := StartSpan(context.Background(), "noop")
		defer span.End()
		assert.Empty(t, GetTraceID(ctx))
		assert.Empty(t, GetTraceParent(ctx))
	})

	t.Run("with tracer", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		SetTracer(provider.Tracer("test"))

		ctx, span := StartSpan(context.Background(), "resolution.ResolveBatch")
		assert.Len(t, GetTraceID(ctx), 32)
		assert.Contains(t, GetTraceParent(ctx), GetTraceID(ctx))
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		assert.Equal(t, "resolution.ResolveBatch", ended[0].Name())
	})
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
