package iec104

import (
	"errors"
	"fmt"
)

// Reason is why a session ended.
type Reason uint8

const (
	// ReasonPeerClosed: the peer closed its side of the connection.
	ReasonPeerClosed Reason = iota + 1

	// ReasonIOError: a read failed for any reason other than EOF or timeout.
	ReasonIOError

	// ReasonIdleTimeout: no data arrived within one idle window.
	ReasonIdleTimeout

	// ReasonShutdown: the server is stopping.
	ReasonShutdown

	// ReasonStalledFrame: a partial frame did not complete in time.
	ReasonStalledFrame
)

func (r Reason) String() string {
	switch r {
	case ReasonPeerClosed:
		return "peer_closed"
	case ReasonIOError:
		return "io_error"
	case ReasonIdleTimeout:
		return "idle_timeout"
	case ReasonShutdown:
		return "shutdown"
	case ReasonStalledFrame:
		return "stalled_frame"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

var (
	// ErrIdleTimeout is wrapped by the termination error of idle sessions.
	ErrIdleTimeout = errors.New("iec104: idle timeout")

	// ErrStalledFrame is wrapped by the termination error of sessions whose
	// partial frame never completed.
	ErrStalledFrame = errors.New("iec104: partial frame stalled")
)

// Termination is the final state of a session.
type Termination struct {
	Reason Reason

	// Err describes abnormal terminations. It is nil for PeerClosed and
	// Shutdown.
	Err error

	// Frames is the number of frames delivered to the sink.
	Frames uint64

	// Discarded is the number of noise bytes skipped during resync.
	Discarded uint64

	// Buffered is the number of bytes of an incomplete frame left behind.
	Buffered int
}

// Abnormal reports whether the session ended on a failure rather than a
// regular close, idle expiry or shutdown.
func (t Termination) Abnormal() bool {
	return t.Reason == ReasonIOError || t.Reason == ReasonStalledFrame
}
