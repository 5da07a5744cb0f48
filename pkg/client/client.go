// Package client is a minimal IEC 104 controlling station used to exercise
// the server: it opens the data transfer with STARTDT act and then sends a
// single command I-frame at a fixed interval.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/pkg/apdu"
)

// Config configures a client run.
type Config struct {
	// Addr is the server host:port.
	Addr string

	// Interval separates STARTDT from the first I-frame and consecutive
	// I-frames.
	Interval time.Duration

	// Count stops after this many I-frames. Zero runs until cancelled.
	Count int

	DialTimeout time.Duration

	// CommonAddr and IOA address the single command. Both default to 1.
	CommonAddr uint16
	IOA        uint32
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.CommonAddr == 0 {
		c.CommonAddr = 1
	}
	if c.IOA == 0 {
		c.IOA = 1
	}
}

// Run dials cfg.Addr and sends frames until ctx is cancelled, Count
// I-frames were sent or a write fails. It returns the number of I-frames
// written; cancellation is not an error.
func Run(ctx context.Context, cfg Config) (int, error) {
	cfg.applyDefaults()

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	logger.Info("Connected to IEC 104 server", logger.KeyAddress, conn.RemoteAddr().String())
	return Send(ctx, conn, cfg)
}

// Send writes STARTDT act to w, waits one interval, then writes a single
// command I-frame every interval. N(S) advances with every I-frame; N(R)
// stays 0 since nothing is read back.
func Send(ctx context.Context, w io.Writer, cfg Config) (int, error) {
	cfg.applyDefaults()

	if _, err := w.Write(apdu.NewUFrame(apdu.StartDTAct)); err != nil {
		return 0, fmt.Errorf("send STARTDT act: %w", err)
	}
	logger.Debug("Sent STARTDT act")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	asdu := apdu.SingleCommandASDU(cfg.CommonAddr, cfg.IOA, true)
	sent := 0
	for cfg.Count == 0 || sent < cfg.Count {
		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}

		frame, err := apdu.NewIFrame(uint16(sent%apdu.MaxSequence), 0, asdu)
		if err != nil {
			return sent, err
		}
		if _, err := w.Write(frame); err != nil {
			if errors.Is(err, net.ErrClosed) && ctx.Err() != nil {
				return sent, nil
			}
			return sent, fmt.Errorf("send I-frame: %w", err)
		}
		sent++
		logger.Debug("Sent I-frame", logger.KeyLength, len(frame), "seq", sent)
	}
	return sent, nil
}
