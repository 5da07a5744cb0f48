package adapter

import (
	"context"
	"net"
)

// Adapter is a protocol server managed by the process lifecycle.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. Serve() starts the listener and blocks until shutdown
//  3. Stop() initiates graceful shutdown bounded by its context
//
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or the listener fails.
	//
	// Returns nil on graceful shutdown, an error if startup fails or active
	// sessions had to be force-closed.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Safe to call multiple times.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Port returns the configured TCP port.
	Port() int
}

// ConnectionHandler serves one accepted connection. Serve blocks until the
// session ends and must close the connection before returning.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates protocol-specific handlers for accepted
// connections. id is unique for the life of the adapter.
type ConnectionFactory interface {
	NewConnection(conn net.Conn, id uint64) ConnectionHandler
}
