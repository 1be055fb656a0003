package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"attest/internal/proof/tracer"
)

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, span := tracer.NewNoop().Start(ctx, tracer.SpanProve, tracer.Int(tracer.AttrAttempt, 1))
	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Bool(tracer.AttrDiscarded, false))
	span.AddEvent("x", tracer.Duration("latency", time.Second))
	span.End(errors.New("boom"))
}

func TestOTelTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))
	ctx, span := tr.Start(context.Background(), tracer.SpanSessionStart,
		tracer.String(tracer.AttrNetwork, "testnet"),
		tracer.Int(tracer.AttrGroups, 2),
	)
	require.NotNil(t, ctx)
	span.SetAttributes(tracer.String(tracer.AttrState, "selecting"))
	span.AddEvent("loaded")
	span.End(nil)
}

func TestOTelTracerDefaultsToGlobalProvider(t *testing.T) {
	tr := tracer.NewOTel()
	_, span := tr.Start(context.Background(), tracer.SpanStatusBatch)
	span.End(errors.New("ledger down"))
}
