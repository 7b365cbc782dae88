package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type ctxKey string

const (
	CtxKeyRequestID ctxKey = "request_id"
	CtxKeyTraceID   ctxKey = "trace_id"
)

func generateID() string {
	buf := make([]byte, 8) // 16 hex chars
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	// Fallback is monotonic-ish; keeps IDs non-empty even if entropy unavailable.
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// WithRequestAndTrace assigns request and trace ids, echoes them in the
// response headers and stores them in the request context. Caller supplied
// ids are kept only when they are short printable tokens.
func WithRequestAndTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := inboundID(r.Header.Get("X-Request-ID"))
		traceID := reqID
		if h := r.Header.Get("X-Trace-ID"); h != "" {
			traceID = inboundID(h)
		}

		r = r.WithContext(WithIDs(r.Context(), reqID, traceID))
		w.Header().Set("X-Request-ID", reqID)
		w.Header().Set("X-Trace-ID", traceID)

		slog.Default().Debug("incoming request",
			"request_id", reqID,
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r)
	})
}

const maxIDLen = 64

// inboundID returns v if it is usable as a log field, else a fresh id.
func inboundID(v string) string {
	if v == "" || len(v) > maxIDLen {
		return generateID()
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == ':':
		default:
			return generateID()
		}
	}
	return v
}

// WithIDs stores request and trace ids. Background work uses it to carry the
// originating request's ids.
func WithIDs(ctx context.Context, requestID, traceID string) context.Context {
	if requestID != "" {
		ctx = context.WithValue(ctx, CtxKeyRequestID, requestID)
	}
	if traceID != "" {
		ctx = context.WithValue(ctx, CtxKeyTraceID, traceID)
	}
	return ctx
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyTraceID).(string); ok {
		return v
	}
	return ""
}
