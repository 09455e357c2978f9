package context

import "context"

// TraceContext links log lines and audit rows of one request.
// TraceID follows the OpenTelemetry span when one is active.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// WithTrace attaches trace ids to ctx.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns the trace ids, or nil outside a request.
func GetTrace(ctx context.Context) *TraceContext {
	trace, _ := ctx.Value(traceContextKey{}).(*TraceContext)
	return trace
}

// GetRequestID returns the request id or "".
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}
