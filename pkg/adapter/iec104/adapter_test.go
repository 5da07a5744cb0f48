package iec104

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/marmos91/iec104d/pkg/adapter"
	"github.com/marmos91/iec104d/pkg/apdu"
	"github.com/marmos91/iec104d/pkg/config"
	"github.com/marmos91/iec104d/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Base: adapter.BaseConfig{
			BindAddress:     "127.0.0.1",
			MaxConnections:  2,
			ShutdownTimeout: 2 * time.Second,
			RetryDelay:      10 * time.Millisecond,
		},
		Session: SessionConfig{
			IdleTimeout: 5 * time.Second,
			BufferSize:  1024,
			GatewayID:   "node-01",
		},
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.GatewayID = "node-07"

	ac := ConfigFrom(cfg)
	assert.Equal(t, "127.0.0.1", ac.Base.BindAddress)
	assert.Equal(t, config.DefaultPort, ac.Base.Port)
	assert.Equal(t, cfg.Server.MaxConnections, ac.Base.MaxConnections)
	assert.Equal(t, cfg.Server.Timeouts.Shutdown, ac.Base.ShutdownTimeout)
	assert.Equal(t, cfg.Server.Timeouts.Connection, ac.Session.IdleTimeout)
	assert.Equal(t, cfg.Server.Timeouts.PartialFrame, ac.Session.PartialFrameTimeout)
	assert.Equal(t, int(cfg.Server.BufferSize), ac.Session.BufferSize)
	assert.Equal(t, "node-07", ac.Session.GatewayID)
}

func TestAdapterEndToEnd(t *testing.T) {
	sk := &recordingSink{}
	m := metrics.New(prometheus.NewRegistry())

	a, err := New(testConfig(), sk, m)
	require.NoError(t, err)
	assert.Equal(t, Protocol, a.Protocol())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx) }()

	addr := a.WaitReady(2 * time.Second)
	require.NotEmpty(t, addr)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	iframe, err := apdu.NewIFrame(0, 0, apdu.SingleCommandASDU(1, 100, true))
	require.NoError(t, err)

	_, err = conn.Write(append(apdu.NewUFrame(apdu.StartDTAct), iframe...))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		frames, _, _ := sk.snapshot()
		return len(frames) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sessions := a.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, conn.LocalAddr().String(), sessions[0].RemoteAddr)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, _, reason := sk.snapshot()
		return reason == "peer_closed"
	}, 2*time.Second, 10*time.Millisecond)

	_, kinds, _ := sk.snapshot()
	assert.Equal(t, []apdu.Kind{apdu.KindUnnumbered, apdu.KindInformation}, kinds)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("adapter did not stop")
	}
	assert.Equal(t, 1.0, counterValue(t, m.ConnectionsAccepted))
}

func TestAdapterStopEndsSessions(t *testing.T) {
	sk := &recordingSink{}
	a, err := New(testConfig(), sk, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- a.ServeListener(context.Background(), ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(a.Sessions()) == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("adapter did not stop")
	}

	_, _, reason := sk.snapshot()
	assert.Equal(t, "shutdown", reason)
}

func TestAdapterIdleTimeoutAdmitsWaitingConnection(t *testing.T) {
	sk := &recordingSink{}
	m := metrics.New(prometheus.NewRegistry())

	cfg := testConfig()
	cfg.Base.MaxConnections = 1
	cfg.Session.IdleTimeout = 300 * time.Millisecond

	a, err := New(cfg, sk, m)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- a.ServeListener(ctx, ln) }()

	first, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	require.Eventually(t, func() bool { return len(a.Sessions()) == 1 }, 2*time.Second, 10*time.Millisecond)
	firstID := a.Sessions()[0].ID
	start := time.Now()

	// The second connection completes the TCP handshake in the backlog but
	// is not accepted while the only permit is held.
	second, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	_, err = second.Write(apdu.NewUFrame(apdu.TestFRAct))
	require.NoError(t, err)

	assert.Never(t, func() bool {
		frames, _, _ := sk.snapshot()
		return len(frames) > 0 || len(a.Sessions()) > 1
	}, 150*time.Millisecond, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		frames, _, _ := sk.snapshot()
		return len(frames) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	idle, err := m.Terminations.GetMetricWithLabelValues("idle_timeout")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counterValue(t, idle), 1.0)
	assert.Equal(t, 2.0, counterValue(t, m.ConnectionsAccepted))

	for _, s := range a.Sessions() {
		assert.NotEqual(t, firstID, s.ID)
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("adapter did not stop")
	}
}

func TestNewRejectsZeroConnections(t *testing.T) {
	cfg := testConfig()
	cfg.Base.MaxConnections = 0
	_, err := New(cfg, nil, nil)
	assert.Error(t, err)
}
