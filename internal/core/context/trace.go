package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext ties the logs, error bodies and span of one request together.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// NewTraceContext builds ids for an incoming request. A trace id supplied by
// the caller wins, then the span's, then a generated one. Span ids come only
// from a valid span.
func NewTraceContext(requestID, traceID string, span trace.SpanContext) *TraceContext {
	tc := &TraceContext{RequestID: requestID, TraceID: traceID}
	if tc.RequestID == "" {
		tc.RequestID = uuid.NewString()
	}
	if span.IsValid() {
		tc.SpanID = span.SpanID().String()
		if tc.TraceID == "" {
			tc.TraceID = span.TraceID().String()
		}
	}
	if tc.TraceID == "" {
		tc.TraceID = uuid.NewString()
	}
	return tc
}

func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

func GetTrace(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceContextKey{}).(*TraceContext)
	return tc
}

// GetTraceID returns "" outside a traced request.
func GetTraceID(ctx context.Context) string {
	if tc := GetTrace(ctx); tc != nil {
		return tc.TraceID
	}
	return ""
}

// GetRequestID returns "" outside a traced request.
func GetRequestID(ctx context.Context) string {
	if tc := GetTrace(ctx); tc != nil {
		return tc.RequestID
	}
	return ""
}
