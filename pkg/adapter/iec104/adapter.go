// Package iec104 serves IEC 60870-5-104 clients: it accepts TCP sessions,
// delimits APDUs from each byte stream and hands them to a sink.
package iec104

import (
	"context"
	"net"
	"time"

	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/pkg/adapter"
	"github.com/marmos91/iec104d/pkg/config"
	"github.com/marmos91/iec104d/pkg/metrics"
	"github.com/marmos91/iec104d/pkg/sink"
)

// Protocol is the adapter name used in logs.
const Protocol = "IEC104"

// Config configures the adapter.
type Config struct {
	Base    adapter.BaseConfig
	Session SessionConfig
}

// ConfigFrom maps the loaded settings onto the adapter configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Base: adapter.BaseConfig{
			BindAddress:        cfg.Server.Host,
			Port:               cfg.Server.Port,
			MaxConnections:     cfg.Server.MaxConnections,
			ShutdownTimeout:    cfg.Server.Timeouts.Shutdown,
			RetryDelay:         cfg.RetryDelay(),
			MetricsLogInterval: cfg.Server.StatsInterval,
		},
		Session: SessionConfig{
			IdleTimeout:         cfg.ConnectionTimeout(),
			PartialFrameTimeout: cfg.Server.Timeouts.PartialFrame,
			BufferSize:          cfg.Server.BufferSize.Int(),
			GatewayID:           cfg.GatewayID,
		},
	}
}

// Adapter is the IEC 104 server.
type Adapter struct {
	*adapter.BaseAdapter

	session SessionConfig
	sink    sink.Sink
	metrics *metrics.Metrics
}

// New creates a stopped adapter. A nil metrics disables collection.
func New(cfg Config, sk sink.Sink, m *metrics.Metrics) (*Adapter, error) {
	base, err := adapter.NewBaseAdapter(cfg.Base, Protocol)
	if err != nil {
		return nil, err
	}
	if m != nil {
		base.Metrics = m
	}
	if sk == nil {
		sk = sink.Discard{}
	}
	return &Adapter{
		BaseAdapter: base,
		session:     cfg.Session,
		sink:        sk,
		metrics:     m,
	}, nil
}

// Serve binds the listener and accepts sessions until ctx is cancelled or
// Stop is called.
func (a *Adapter) Serve(ctx context.Context) error {
	logger.Debug("IEC 104 session settings",
		"idle_timeout", a.session.IdleTimeout,
		"partial_frame_timeout", a.session.PartialFrameTimeout,
		"buffer_size", a.session.BufferSize)
	return a.ServeWithFactory(ctx, a)
}

// ServeListener runs the server on an existing listener.
func (a *Adapter) ServeListener(ctx context.Context, ln net.Listener) error {
	return a.BaseAdapter.ServeListener(ctx, ln, a)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn, id uint64) adapter.ConnectionHandler {
	return NewConnection(conn, id, a.session, a.sink, a.metrics)
}

// WaitReady blocks until the listener is bound or failed to bind, or until
// timeout elapses. It returns the listener address, empty on failure.
func (a *Adapter) WaitReady(timeout time.Duration) string {
	select {
	case <-a.ListenerReady:
		return a.GetListenerAddr()
	case <-time.After(timeout):
		return ""
	}
}

var (
	_ adapter.Adapter           = (*Adapter)(nil)
	_ adapter.ConnectionFactory = (*Adapter)(nil)
)
