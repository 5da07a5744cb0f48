package iec104

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/marmos91/iec104d/internal/bufpool"
	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/internal/telemetry"
	"github.com/marmos91/iec104d/pkg/apdu"
	"github.com/marmos91/iec104d/pkg/metrics"
	"github.com/marmos91/iec104d/pkg/sink"
)

// sinkCloseTimeout bounds the final SessionClosed delivery, which runs on a
// context detached from shutdown cancellation.
const sinkCloseTimeout = 2 * time.Second

// SessionConfig holds the per-session settings, shared read-only.
type SessionConfig struct {
	// IdleTimeout is the window granted to every wait for data.
	IdleTimeout time.Duration

	// PartialFrameTimeout ends the session when a partial frame is not
	// completed within this long. Zero disables it.
	PartialFrameTimeout time.Duration

	// BufferSize is the size of a single read.
	BufferSize int

	GatewayID string
}

// Connection handles one IEC 104 session: it reads the byte stream,
// delimits APDUs and hands each classified frame to the sink in arrival
// order.
//
// Every wait for data gets a fresh idle window. The session ends on peer
// close, read error, idle expiry, server shutdown or a stalled partial
// frame; in all cases the socket is closed before Serve returns.
type Connection struct {
	conn    net.Conn
	id      uint64
	cfg     SessionConfig
	sink    sink.Sink
	metrics *metrics.Metrics

	buffer *apdu.Reassembler
	frames uint64

	term Termination
	done chan struct{}
}

// NewConnection creates a session handler for conn. A nil sink discards
// frames and a nil metrics disables collection.
func NewConnection(conn net.Conn, id uint64, cfg SessionConfig, sk sink.Sink, m *metrics.Metrics) *Connection {
	if sk == nil {
		sk = sink.Discard{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = apdu.MaxFrameSize
	}
	return &Connection{
		conn:    conn,
		id:      id,
		cfg:     cfg,
		sink:    sk,
		metrics: m,
		buffer:  apdu.NewReassembler(cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

// Serve runs the session until it terminates.
func (c *Connection) Serve(ctx context.Context) {
	started := time.Now()
	peer := c.conn.RemoteAddr().String()

	ctx, span := telemetry.StartSessionSpan(ctx, c.id, peer)
	lc := logger.NewLogContext(c.id, clientIP(peer))
	lc.TraceID = telemetry.TraceID(ctx)
	lc.SpanID = telemetry.SpanID(ctx)
	ctx = logger.WithContext(ctx, lc)

	sess := sink.Session{
		ID:         c.id,
		GatewayID:  c.cfg.GatewayID,
		RemoteAddr: peer,
		LocalAddr:  c.conn.LocalAddr().String(),
		StartedAt:  started,
	}

	defer func() {
		if r := recover(); r != nil {
			c.term = Termination{Reason: ReasonIOError, Err: fmt.Errorf("panic in session: %v", r)}
			logger.ErrorCtx(ctx, "Panic in IEC 104 session", logger.KeyError, r, "stack", string(debug.Stack()))
		}
		_ = c.conn.Close()

		c.term.Frames = c.frames
		c.term.Discarded = c.buffer.Discarded()
		c.term.Buffered = c.buffer.Buffered()
		c.finish(ctx, sess, started)

		span.End()
		close(c.done)
	}()

	logger.DebugCtx(ctx, "IEC 104 session started", logger.KeyAddress, peer)
	c.deliver(ctx, c.sink.SessionOpened(ctx, sess))

	c.term = c.run(ctx, sess)
}

// run is the read loop. It returns the termination without the counters,
// which Serve fills in.
func (c *Connection) run(ctx context.Context, sess sink.Session) Termination {
	buf := bufpool.Get(c.cfg.BufferSize)
	defer bufpool.Put(buf)

	// Cancellation cuts off a blocked read; the loop then sees ctx.Err().
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var partialSince time.Time
	for {
		now := time.Now()
		deadline := now.Add(c.cfg.IdleTimeout)

		stallBound := false
		if !partialSince.IsZero() && c.cfg.PartialFrameTimeout > 0 {
			if stall := partialSince.Add(c.cfg.PartialFrameTimeout); stall.Before(deadline) {
				deadline = stall
				stallBound = true
			}
		}

		if ctx.Err() != nil {
			return Termination{Reason: ReasonShutdown}
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			// A closed conn rejects deadlines; the read below returns at
			// once and says whether the peer or this side closed it.
			if !isClosedConn(err) {
				return Termination{Reason: ReasonIOError, Err: fmt.Errorf("set read deadline: %w", err)}
			}
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.buffer.Write(buf[:n])
			extracted := c.drain(ctx, sess)

			switch {
			case c.buffer.Buffered() == 0:
				partialSince = time.Time{}
			case extracted > 0 || partialSince.IsZero():
				partialSince = time.Now()
			}
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return Termination{Reason: ReasonShutdown}
		}
		if errors.Is(err, io.EOF) {
			return Termination{Reason: ReasonPeerClosed}
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if stallBound {
				return Termination{
					Reason: ReasonStalledFrame,
					Err: fmt.Errorf("%w: %d bytes pending for %s",
						ErrStalledFrame, c.buffer.Buffered(), c.cfg.PartialFrameTimeout),
				}
			}
			return Termination{
				Reason: ReasonIdleTimeout,
				Err:    fmt.Errorf("%w: no data for %s", ErrIdleTimeout, c.cfg.IdleTimeout),
			}
		}

		return Termination{Reason: ReasonIOError, Err: fmt.Errorf("read: %w", err)}
	}
}

// drain extracts every complete frame from the buffer and dispatches it.
// It returns the number of frames extracted.
func (c *Connection) drain(ctx context.Context, sess sink.Session) int {
	before := c.buffer.Discarded()

	extracted := 0
	for {
		raw, ok := c.buffer.Next()
		if !ok {
			break
		}
		extracted++
		c.dispatch(ctx, sess, raw)
	}

	if skipped := c.buffer.Discarded() - before; skipped > 0 {
		c.metrics.AddResyncBytes(skipped)
		logger.DebugCtx(ctx, "Resynchronized on start byte", logger.KeyDiscarded, skipped)
	}
	return extracted
}

func (c *Connection) dispatch(ctx context.Context, sess sink.Session, raw []byte) {
	f, err := apdu.Classify(raw, time.Now())
	if err != nil {
		c.metrics.RecordDroppedFrame()
		logger.DebugCtx(ctx, "Dropping unclassifiable frame", logger.KeyLength, len(raw), logger.KeyError, err)
		return
	}

	c.frames++
	kind := f.Kind.String()
	c.metrics.RecordFrame(kind, f.Len())
	telemetry.FrameEvent(ctx, kind, f.Len())

	c.deliver(ctx, c.sink.FrameReceived(ctx, sess, f))
}

// deliver logs sink failures. They never end the session.
func (c *Connection) deliver(ctx context.Context, err error) {
	for _, f := range sink.Failures(err, c.sink.Name()) {
		c.metrics.RecordSinkError(f.Sink)
		logger.WarnCtx(ctx, "Sink delivery failed", "sink", f.Sink, logger.KeyError, f.Err)
	}
}

func (c *Connection) finish(ctx context.Context, sess sink.Session, started time.Time) {
	reason := c.term.Reason.String()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkCloseTimeout)
	defer cancel()
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCtx(ctx, "Panic in sink on session close", logger.KeyError, r)
			}
		}()
		c.deliver(closeCtx, c.sink.SessionClosed(closeCtx, sess, reason))
	}()

	lifetime := time.Since(started)
	c.metrics.RecordTermination(reason, lifetime)

	var spanErr error
	if c.term.Abnormal() {
		spanErr = c.term.Err
	}
	telemetry.EndSession(ctx, reason, c.term.Frames, spanErr)

	args := []any{
		logger.KeyReason, reason,
		logger.KeyFrames, c.term.Frames,
		logger.KeyDiscarded, c.term.Discarded,
		logger.KeyBuffered, c.term.Buffered,
		logger.KeyDurationMs, float64(lifetime.Microseconds()) / 1000.0,
	}
	if c.term.Err != nil {
		args = append(args, logger.KeyError, c.term.Err)
	}
	if c.term.Reason == ReasonIOError {
		logger.WarnCtx(ctx, "IEC 104 session terminated", args...)
	} else {
		logger.DebugCtx(ctx, "IEC 104 session terminated", args...)
	}
}

// Termination returns how the session ended. It blocks until Serve returns.
func (c *Connection) Termination() Termination {
	<-c.done
	return c.term
}

// Done is closed when Serve returns.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
