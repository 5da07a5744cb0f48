package sink

import (
	"context"
	"encoding/hex"

	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/pkg/apdu"
)

// Log writes session events at info level and frames at debug level.
type Log struct{}

// NewLog creates a logging sink.
func NewLog() *Log { return &Log{} }

// Name implements Sink.
func (*Log) Name() string { return "log" }

// SessionOpened implements Sink.
func (*Log) SessionOpened(ctx context.Context, s Session) error {
	logger.InfoCtx(ctx, "IEC 104 session opened", logger.KeyAddress, s.RemoteAddr)
	return nil
}

// FrameReceived implements Sink.
func (*Log) FrameReceived(ctx context.Context, s Session, f apdu.Frame) error {
	if !logger.Enabled(logger.LevelDebug) {
		return nil
	}
	logger.DebugCtx(ctx, "frame received",
		logger.KeyKind, f.Kind.String(),
		logger.KeyLength, f.Len(),
		"captured_at_ms", f.CapturedAtMillis(),
		"raw", hex.EncodeToString(f.Raw))
	return nil
}

// SessionClosed implements Sink.
func (*Log) SessionClosed(ctx context.Context, s Session, reason string) error {
	logger.InfoCtx(ctx, "IEC 104 session closed", logger.KeyAddress, s.RemoteAddr, logger.KeyReason, reason)
	return nil
}
