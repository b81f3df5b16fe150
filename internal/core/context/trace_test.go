package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTraceContext(t *testing.T) {
	tc := NewTraceContext("req-1", "caller-trace", trace.SpanContext{})
	assert.Equal(t, "req-1", tc.RequestID)
	assert.Equal(t, "caller-trace", tc.TraceID)
	assert.Empty(t, tc.SpanID)

	generated := NewTraceContext("", "", trace.SpanContext{})
	assert.NotEmpty(t, generated.RequestID)
	assert.NotEmpty(t, generated.TraceID)
	assert.NotEqual(t, generated.RequestID, generated.TraceID)
}

func TestNewTraceContextUsesValidSpan(t *testing.T) {
	span := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01, 0x02},
		SpanID:  trace.SpanID{0x03},
	})
	a := assert.New(t)
	a.True(span.IsValid())

	tc := NewTraceContext("req-1", "", span)
	a.Equal(span.TraceID().String(), tc.TraceID)
	a.Equal(span.SpanID().String(), tc.SpanID)

	kept := NewTraceContext("req-1", "caller-trace", span)
	a.Equal("caller-trace", kept.TraceID)
	a.Equal(span.SpanID().String(), kept.SpanID)
}

func TestTraceIDsFromContext(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))

	ctx := WithTrace(context.Background(), &TraceContext{TraceID: "t", RequestID: "r"})
	assert.Equal(t, "t", GetTraceID(ctx))
	assert.Equal(t, "r", GetRequestID(ctx))
}
