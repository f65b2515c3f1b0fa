package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	TraceHeader      = "X-Trace-ID"
	maxTraceIDLength = 128
)

// TraceMiddleware propagates the caller's X-Trace-ID, or X-Request-ID as a
// fallback, and mints a new one when neither is usable.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(contextWithTraceID(r.Context(), traceID)))
	})
}

func incomingTraceID(r *http.Request) string {
	for _, h := range []string{TraceHeader, "X-Request-ID"} {
		if v := r.Header.Get(h); validTraceID(v) {
			return v
		}
	}
	return ""
}

func validTraceID(v string) bool {
	if v == "" || len(v) > maxTraceIDLength {
		return false
	}
	for _, c := range v {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

func contextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey, traceID)
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(traceContextKey).(string)
	return v
}
