package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/pkg/client"
)

var (
	clientAddr     string
	clientInterval time.Duration
	clientCount    int
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the demo IEC 104 client",
	Long: `Connect to an IEC 104 server, send STARTDT act, wait one interval and
then send a single command I-frame (C_SC_NA_1, CA 1, IOA 1, on) every interval.

Examples:
  # Send one frame per second until interrupted
  iec104d client --addr 127.0.0.1:2404

  # Send five frames, 200ms apart
  iec104d client --interval 200ms --count 5`,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringVar(&clientAddr, "addr", "127.0.0.1:2404", "server address")
	clientCmd.Flags().DurationVar(&clientInterval, "interval", time.Second, "interval between frames")
	clientCmd.Flags().IntVar(&clientCount, "count", 0, "number of I-frames to send (0 runs until interrupted)")
}

func runClient(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sent, err := client.Run(ctx, client.Config{
		Addr:     clientAddr,
		Interval: clientInterval,
		Count:    clientCount,
	})
	logger.Info("Client finished", logger.KeyFrames, sent)
	return err
}
