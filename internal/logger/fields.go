package logger

import (
	"context"
	"time"
)

// Standard field keys. Use these consistently so log aggregation can query
// sessions and frames across components.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyConnectionID = "connection_id"
	KeyClientIP     = "client_ip"
	KeyAddress      = "address"
	KeyActive       = "active"
	KeyReason       = "reason"

	KeyKind      = "kind"
	KeyLength    = "length"
	KeyBytes     = "bytes"
	KeyBuffered  = "buffered"
	KeyDiscarded = "discarded"
	KeyFrames    = "frames"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeySubject    = "subject"
	KeyKey        = "key"
)

type contextKey struct{}

// LogContext holds connection-scoped fields injected by the *Ctx helpers.
type LogContext struct {
	TraceID      string
	SpanID       string
	ConnectionID uint64
	ClientIP     string
	StartTime    time.Time
}

// WithContext returns a context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for one accepted connection.
func NewLogContext(connectionID uint64, clientIP string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		ClientIP:     clientIP,
		StartTime:    time.Now(),
	}
}

// DurationMs returns the time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return DurationSince(lc.StartTime)
}

// DurationSince returns the time elapsed since start in milliseconds.
func DurationSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 8+len(args))
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		out = append(out, KeySpanID, lc.SpanID)
	}
	if lc.ConnectionID != 0 {
		out = append(out, KeyConnectionID, lc.ConnectionID)
	}
	if lc.ClientIP != "" {
		out = append(out, KeyClientIP, lc.ClientIP)
	}
	return append(out, args...)
}
