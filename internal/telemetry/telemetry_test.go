package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "dev")
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestRunRecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := tracer
	tracer = tp.Tracer(serviceName)
	t.Cleanup(func() { tracer = prev })

	err := Run(context.Background(), "close-stale", func(ctx context.Context) error {
		return errors.New("boom")
	}, attribute.Bool("dry_run", true))
	require.Error(t, err)

	require.NoError(t, Run(context.Background(), "sync", func(ctx context.Context) error { return nil }))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "close-stale", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("dry_run", true))
	assert.Equal(t, "sync", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
