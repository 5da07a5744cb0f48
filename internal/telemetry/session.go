package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span and attribute names for IEC 104 sessions.
const (
	SpanSession = "iec104.session"
	EventFrame  = "iec104.frame"

	AttrClientAddr   = "client.address"
	AttrConnectionID = "iec104.connection_id"
	AttrFrameKind    = "iec104.frame.kind"
	AttrFrameLength  = "iec104.frame.length"
	AttrFrames       = "iec104.frames"
	AttrReason       = "iec104.termination.reason"
)

// StartSessionSpan opens the span that covers one accepted connection.
func StartSessionSpan(ctx context.Context, connectionID uint64, clientAddr string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanSession,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int64(AttrConnectionID, int64(connectionID)),
			attribute.String(AttrClientAddr, clientAddr),
		),
	)
}

// FrameEvent records one delimited frame on the session span.
func FrameEvent(ctx context.Context, kind string, length int) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(EventFrame, trace.WithAttributes(
		attribute.String(AttrFrameKind, kind),
		attribute.Int(AttrFrameLength, length),
	))
}

// EndSession annotates the session span with its outcome. err is recorded
// only for abnormal terminations; the caller still ends the span.
func EndSession(ctx context.Context, reason string, frames uint64, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String(AttrReason, reason),
		attribute.Int64(AttrFrames, int64(frames)),
	)
	RecordError(ctx, err)
}
