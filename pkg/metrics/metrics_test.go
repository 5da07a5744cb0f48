package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.RecordConnectionAccepted()
	m.RecordConnectionClosed()
	m.RecordConnectionForceClosed()
	m.SetActiveConnections(3)
	m.RecordAcceptError()
	m.RecordFrame("U", 6)
	m.AddResyncBytes(4)
	m.RecordDroppedFrame()
	m.RecordTermination("idle_timeout", time.Second)
	m.RecordSinkError("nats")
}

func TestMetrics_Connections(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordConnectionAccepted()
	m.RecordConnectionAccepted()
	m.RecordConnectionClosed()
	m.SetActiveConnections(1)

	if v := metricValue(t, m.ConnectionsAccepted); v != 2 {
		t.Errorf("ConnectionsAccepted = %f, want 2", v)
	}
	if v := metricValue(t, m.ConnectionsClosed); v != 1 {
		t.Errorf("ConnectionsClosed = %f, want 1", v)
	}
	if v := metricValue(t, m.ActiveConnections); v != 1 {
		t.Errorf("ActiveConnections = %f, want 1", v)
	}
}

func TestMetrics_Frames(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFrame("U", 6)
	m.RecordFrame("U", 6)
	m.RecordFrame("I", 16)
	m.AddResyncBytes(3)
	m.AddResyncBytes(0)
	m.RecordDroppedFrame()

	if v := vecValue(t, m.Frames, "U"); v != 2 {
		t.Errorf("Frames{kind=U} = %f, want 2", v)
	}
	if v := vecValue(t, m.Frames, "I"); v != 1 {
		t.Errorf("Frames{kind=I} = %f, want 1", v)
	}
	if v := metricValue(t, m.ResyncBytes); v != 3 {
		t.Errorf("ResyncBytes = %f, want 3", v)
	}
	if v := metricValue(t, m.DroppedFrames); v != 1 {
		t.Errorf("DroppedFrames = %f, want 1", v)
	}

	var metric io_prometheus_client.Metric
	if err := m.FrameSize.Write(&metric); err != nil {
		t.Fatalf("Write histogram: %v", err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("FrameSize sample count = %d, want 3", got)
	}
	if got := metric.GetHistogram().GetSampleSum(); got != 28 {
		t.Errorf("FrameSize sample sum = %f, want 28", got)
	}
}

func TestMetrics_Terminations(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTermination("peer_closed", 2*time.Second)
	m.RecordTermination("idle_timeout", 30*time.Second)
	m.RecordTermination("idle_timeout", 30*time.Second)
	m.RecordSinkError("redis")

	if v := vecValue(t, m.Terminations, "idle_timeout"); v != 2 {
		t.Errorf("Terminations{reason=idle_timeout} = %f, want 2", v)
	}
	if v := vecValue(t, m.Terminations, "peer_closed"); v != 1 {
		t.Errorf("Terminations{reason=peer_closed} = %f, want 1", v)
	}
	if v := vecValue(t, m.SinkErrors, "redis"); v != 1 {
		t.Errorf("SinkErrors{sink=redis} = %f, want 1", v)
	}
}

func TestMetrics_ReRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := New(reg)
	first.RecordConnectionAccepted()

	// A second New against the same registry must reuse the collectors.
	second := New(reg)
	second.RecordConnectionAccepted()

	if v := metricValue(t, first.ConnectionsAccepted); v != 2 {
		t.Errorf("ConnectionsAccepted = %f, want 2 (shared collector)", v)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	New(reg).RecordFrame("S", 6)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"iec104d_frames_received_total", "go_goroutines"} {
		if !names[want] {
			t.Errorf("expected metric family %q in registry", want)
		}
	}
}

func metricValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var metric io_prometheus_client.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if metric.Counter != nil {
		return metric.GetCounter().GetValue()
	}
	return metric.GetGauge().GetValue()
}

func vecValue(t *testing.T, cv *prometheus.CounterVec, label string) float64 {
	t.Helper()
	counter, err := cv.GetMetricWithLabelValues(label)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%q): %v", label, err)
	}
	return metricValue(t, counter)
}
