// Package adapter provides the TCP lifecycle shared by protocol servers:
// listener management, admission control, session tracking and graceful
// shutdown.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/iec104d/internal/logger"
)

// shutdownReadInterrupt is how far in the future blocked reads are cut off
// once shutdown begins.
const shutdownReadInterrupt = 100 * time.Millisecond

// BaseConfig holds configuration common to all protocol adapters.
type BaseConfig struct {
	// BindAddress is the IP address to bind to.
	// Empty string or "0.0.0.0" binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port.
	Port int

	// MaxConnections is the number of admission permits. Must be >= 1.
	MaxConnections int

	// ShutdownTimeout is the maximum duration to wait for active sessions
	// during graceful shutdown before they are force-closed.
	ShutdownTimeout time.Duration

	// RetryDelay is the pause after a failed accept before trying again.
	RetryDelay time.Duration

	// MetricsLogInterval is the interval at which to log server statistics.
	// 0 disables periodic logging.
	MetricsLogInterval time.Duration
}

// MetricsRecorder records connection lifecycle metrics.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	RecordAcceptError()
	SetActiveConnections(count int32)
}

// ConnInfo describes a live session.
type ConnInfo struct {
	ID         uint64    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
}

type trackedConn struct {
	conn net.Conn
	info ConnInfo
}

// BaseAdapter provides shared TCP lifecycle management for protocol adapters.
//
// Protocol adapters embed it and supply a ConnectionFactory. Every accepted
// connection holds one admission permit for its whole life; the permit is
// released when the handler returns, whatever the reason.
//
// All exported methods are safe for concurrent use. Shutdown is guarded by
// sync.Once, so Stop may be called repeatedly.
type BaseAdapter struct {
	Config BaseConfig

	protocolName string

	// Metrics is an optional recorder. If nil, no metrics are collected.
	Metrics MetricsRecorder

	admission *Admission

	listener   net.Listener
	listenerMu sync.RWMutex

	// activeConns lets shutdown wait for session goroutines.
	activeConns  sync.WaitGroup
	shutdownOnce sync.Once
	readyOnce    sync.Once

	// Shutdown is closed when graceful shutdown begins.
	Shutdown chan struct{}

	// ConnCount tracks the current number of sessions.
	ConnCount atomic.Int32

	nextID atomic.Uint64

	// ShutdownCtx is handed to every session and cancelled on shutdown.
	ShutdownCtx    context.Context
	CancelRequests context.CancelFunc

	// sessions maps session id to *trackedConn for listing and forced closure.
	sessions sync.Map

	// ListenerReady is closed once the listener is bound (or failed to bind).
	ListenerReady chan struct{}
}

// NewBaseAdapter creates a stopped adapter. Call ServeWithFactory to start.
func NewBaseAdapter(config BaseConfig, protocol string) (*BaseAdapter, error) {
	admission, err := NewAdmission(config.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", protocol, err)
	}
	logger.Debug(protocol+" connection limit", "max_connections", config.MaxConnections)

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		admission:      admission,
		Shutdown:       make(chan struct{}),
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}, nil
}

// ServeWithFactory binds the configured address and runs the accept loop.
//
// Returns nil on graceful shutdown, an error if the listener cannot be
// created or sessions had to be force-closed.
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory) error {
	listenAddr := net.JoinHostPort(b.Config.BindAddress, strconv.Itoa(b.Config.Port))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		b.readyOnce.Do(func() { close(b.ListenerReady) })
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, listenAddr, err)
	}
	return b.ServeListener(ctx, listener, factory)
}

// ServeListener runs the accept loop on an existing listener, which it takes
// ownership of.
func (b *BaseAdapter) ServeListener(ctx context.Context, listener net.Listener, factory ConnectionFactory) error {
	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	b.readyOnce.Do(func() { close(b.ListenerReady) })

	logger.Info(b.protocolName+" server listening",
		logger.KeyAddress, listener.Addr().String(),
		"max_connections", b.admission.Limit())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", logger.KeyError, ctx.Err())
			b.initiateShutdown()
		case <-b.Shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(b.ShutdownCtx)
	}

	for {
		// Hold a permit before accepting so that excess clients stay in the
		// listen backlog.
		permit, err := b.admission.Acquire(b.ShutdownCtx)
		if err != nil {
			return b.gracefulShutdown()
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			permit.Release()

			select {
			case <-b.Shutdown:
				return b.gracefulShutdown()
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				logger.Error(b.protocolName+" listener closed unexpectedly", logger.KeyError, err)
				b.initiateShutdown()
				if serr := b.gracefulShutdown(); serr != nil {
					return serr
				}
				return fmt.Errorf("%s listener closed: %w", b.protocolName, err)
			}

			logger.Warn("Error accepting "+b.protocolName+" connection",
				logger.KeyError, err, "retry_in", b.Config.RetryDelay)
			if b.Metrics != nil {
				b.Metrics.RecordAcceptError()
			}

			select {
			case <-time.After(b.Config.RetryDelay):
				continue
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.KeyError, err)
			}
		}

		b.track(factory, tcpConn, permit)
	}
}

// track registers an accepted connection and runs its handler on a new
// goroutine that owns permit.
func (b *BaseAdapter) track(factory ConnectionFactory, tcpConn net.Conn, permit *Permit) {
	id := b.nextID.Add(1)
	tc := &trackedConn{
		conn: tcpConn,
		info: ConnInfo{
			ID:         id,
			RemoteAddr: tcpConn.RemoteAddr().String(),
			StartedAt:  time.Now(),
		},
	}

	b.activeConns.Add(1)
	current := b.ConnCount.Add(1)
	b.sessions.Store(id, tc)

	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
		b.Metrics.SetActiveConnections(current)
	}
	logger.Debug(b.protocolName+" connection accepted",
		logger.KeyConnectionID, id,
		logger.KeyAddress, tc.info.RemoteAddr,
		logger.KeyActive, current)

	handler := factory.NewConnection(tcpConn, id)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in "+b.protocolName+" session",
					logger.KeyConnectionID, id, logger.KeyError, r)
			}
			_ = tcpConn.Close()

			b.sessions.Delete(id)
			b.activeConns.Done()
			remaining := b.ConnCount.Add(-1)
			permit.Release()

			if b.Metrics != nil {
				b.Metrics.RecordConnectionClosed()
				b.Metrics.SetActiveConnections(remaining)
			}
			logger.Debug(b.protocolName+" connection closed",
				logger.KeyConnectionID, id,
				logger.KeyAddress, tc.info.RemoteAddr,
				logger.KeyActive, remaining)
		}()

		handler.Serve(b.ShutdownCtx)
	}()
}

// initiateShutdown stops accepting, cancels session contexts and cuts off
// blocked reads. Safe to call multiple times.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")

		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("Error closing "+b.protocolName+" listener", logger.KeyError, err)
			}
		}
		b.listenerMu.Unlock()

		// Cancel before interrupting so a woken reader already sees the
		// cancelled context.
		b.CancelRequests()
		b.interruptBlockingReads()
	})
}

// interruptBlockingReads sets a short deadline on all active connections.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(shutdownReadInterrupt)

	b.sessions.Range(func(key, value any) bool {
		tc := value.(*trackedConn)
		if err := tc.conn.SetReadDeadline(deadline); err != nil {
			logger.Debug("Error setting shutdown deadline on connection",
				logger.KeyConnectionID, key, logger.KeyError, err)
		}
		return true
	})
}

// gracefulShutdown waits for active sessions up to ShutdownTimeout and then
// force-closes the rest.
func (b *BaseAdapter) gracefulShutdown() error {
	b.initiateShutdown()

	active := b.ConnCount.Load()
	logger.Info(b.protocolName+" graceful shutdown: waiting for active connections",
		logger.KeyActive, active, "timeout", b.Config.ShutdownTimeout)

	select {
	case <-b.drained():
		logger.Info(b.protocolName + " graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(b.Config.ShutdownTimeout):
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown timeout exceeded - forcing closure",
			logger.KeyActive, remaining, "timeout", b.Config.ShutdownTimeout)

		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

func (b *BaseAdapter) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes all tracked connections.
func (b *BaseAdapter) forceCloseConnections() {
	closed := 0
	b.sessions.Range(func(key, value any) bool {
		tc := value.(*trackedConn)
		if err := tc.conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.KeyConnectionID, key, logger.KeyError, err)
			return true
		}
		closed++
		if b.Metrics != nil {
			b.Metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed connections", "count", closed)
	}
}

// Stop initiates graceful shutdown and waits for sessions to finish or ctx
// to expire.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	select {
	case <-b.drained():
		return nil
	case <-ctx.Done():
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown context cancelled",
			logger.KeyActive, remaining, logger.KeyError, ctx.Err())
		b.forceCloseConnections()
		return ctx.Err()
	}
}

// logMetrics periodically logs session statistics.
func (b *BaseAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info(b.protocolName+" statistics",
				logger.KeyActive, b.ConnCount.Load(),
				"permits_in_use", b.admission.Active(),
				"max_connections", b.admission.Limit())
		}
	}
}

// Sessions returns the live sessions ordered by id.
func (b *BaseAdapter) Sessions() []ConnInfo {
	var out []ConnInfo
	b.sessions.Range(func(_, value any) bool {
		out = append(out, value.(*trackedConn).info)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Admission returns the admission controller.
func (b *BaseAdapter) Admission() *Admission {
	return b.admission
}

// GetActiveConnections returns the current number of sessions.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// IsShuttingDown reports whether shutdown has begun.
func (b *BaseAdapter) IsShuttingDown() bool {
	select {
	case <-b.Shutdown:
		return true
	default:
		return false
	}
}

// GetListenerAddr returns the bound address, blocking until the listener is
// ready. It returns "" if binding failed.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured TCP port.
func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

// Protocol returns the human-readable protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}
