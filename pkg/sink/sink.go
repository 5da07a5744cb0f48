// Package sink delivers session lifecycle events and delimited frames to
// consumers above the framing layer.
//
// A Sink is called from the session goroutine in arrival order. Delivery
// errors are reported to the caller, which logs them; they never end a
// session.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/iec104d/pkg/apdu"
)

// Session identifies one accepted connection.
type Session struct {
	ID         uint64
	GatewayID  string
	RemoteAddr string
	LocalAddr  string
	StartedAt  time.Time
}

// Sink consumes session events and frames.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	SessionOpened(ctx context.Context, s Session) error
	FrameReceived(ctx context.Context, s Session, f apdu.Frame) error
	SessionClosed(ctx context.Context, s Session, reason string) error
}

// DeliveryError attributes a failure to a named sink.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Failures flattens err into per-sink delivery errors. Errors that do not
// carry a sink name are attributed to fallback.
func Failures(err error, fallback string) []*DeliveryError {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*DeliveryError
		for _, e := range joined.Unwrap() {
			out = append(out, Failures(e, fallback)...)
		}
		return out
	}

	var de *DeliveryError
	if errors.As(err, &de) {
		return []*DeliveryError{de}
	}
	return []*DeliveryError{{Sink: fallback, Err: err}}
}

// Multi fans every event out to all of its sinks, in order. A failing sink
// does not stop delivery to the others.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over sinks. Nil entries are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// SessionOpened implements Sink.
func (m *Multi) SessionOpened(ctx context.Context, s Session) error {
	return m.each(func(sk Sink) error { return sk.SessionOpened(ctx, s) })
}

// FrameReceived implements Sink.
func (m *Multi) FrameReceived(ctx context.Context, s Session, f apdu.Frame) error {
	return m.each(func(sk Sink) error { return sk.FrameReceived(ctx, s, f) })
}

// SessionClosed implements Sink.
func (m *Multi) SessionClosed(ctx context.Context, s Session, reason string) error {
	return m.each(func(sk Sink) error { return sk.SessionClosed(ctx, s, reason) })
}

func (m *Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, sk := range m.sinks {
		if err := fn(sk); err != nil {
			errs = append(errs, &DeliveryError{Sink: sk.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Name() string                                             { return "discard" }
func (Discard) SessionOpened(context.Context, Session) error             { return nil }
func (Discard) FrameReceived(context.Context, Session, apdu.Frame) error { return nil }
func (Discard) SessionClosed(context.Context, Session, string) error     { return nil }
