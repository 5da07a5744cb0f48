// Package metrics exposes Prometheus collectors for the IEC 104 server.
//
// All methods are nil-safe: a nil *Metrics is a valid recorder that does
// nothing, which is how metrics are disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "iec104d"

// Metrics groups the server collectors.
type Metrics struct {
	ConnectionsAccepted    prometheus.Counter
	ConnectionsClosed      prometheus.Counter
	ConnectionsForceClosed prometheus.Counter
	ActiveConnections      prometheus.Gauge
	AcceptErrors           prometheus.Counter

	// Frames counts delimited APDUs by kind ("I", "S", "U").
	Frames *prometheus.CounterVec

	// FrameSize observes total APDU length including start byte and length.
	FrameSize prometheus.Histogram

	// ResyncBytes counts bytes discarded while hunting for a start byte.
	ResyncBytes prometheus.Counter

	// DroppedFrames counts delimited frames too short to classify.
	DroppedFrames prometheus.Counter

	// Terminations counts ended sessions by reason.
	Terminations *prometheus.CounterVec

	SessionDuration prometheus.Histogram

	// SinkErrors counts failed deliveries by sink name.
	SinkErrors *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered. Collectors already present in reg are reused so a
// restarted server keeps exporting the same series.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Total number of accepted IEC 104 connections",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "closed_total",
			Help:      "Total number of closed IEC 104 connections",
		}),
		ConnectionsForceClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "force_closed_total",
			Help:      "Connections closed forcibly after the shutdown timeout",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Sessions currently holding an admission permit",
		}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accept_errors_total",
			Help:      "Failed accept calls on the listener",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "APDUs delimited from the byte stream, by frame kind",
		}, []string{"kind"}),
		FrameSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "size_bytes",
			Help:      "Total APDU size in bytes",
			Buckets:   []float64{6, 16, 32, 64, 128, 257},
		}),
		ResyncBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "resync_bytes_total",
			Help:      "Bytes discarded while resynchronizing on the start byte",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "dropped_total",
			Help:      "Frames dropped because they carry no control field",
		}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "terminated_total",
			Help:      "Ended sessions by termination reason",
		}, []string{"reason"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Session lifetime from accept to close",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sinks",
			Name:      "errors_total",
			Help:      "Failed frame or session deliveries, by sink",
		}, []string{"sink"}),
	}

	if reg != nil {
		m.ConnectionsAccepted = registerOrReuse(reg, m.ConnectionsAccepted).(prometheus.Counter)
		m.ConnectionsClosed = registerOrReuse(reg, m.ConnectionsClosed).(prometheus.Counter)
		m.ConnectionsForceClosed = registerOrReuse(reg, m.ConnectionsForceClosed).(prometheus.Counter)
		m.ActiveConnections = registerOrReuse(reg, m.ActiveConnections).(prometheus.Gauge)
		m.AcceptErrors = registerOrReuse(reg, m.AcceptErrors).(prometheus.Counter)
		m.Frames = registerOrReuse(reg, m.Frames).(*prometheus.CounterVec)
		m.FrameSize = registerOrReuse(reg, m.FrameSize).(prometheus.Histogram)
		m.ResyncBytes = registerOrReuse(reg, m.ResyncBytes).(prometheus.Counter)
		m.DroppedFrames = registerOrReuse(reg, m.DroppedFrames).(prometheus.Counter)
		m.Terminations = registerOrReuse(reg, m.Terminations).(*prometheus.CounterVec)
		m.SessionDuration = registerOrReuse(reg, m.SessionDuration).(prometheus.Histogram)
		m.SinkErrors = registerOrReuse(reg, m.SinkErrors).(*prometheus.CounterVec)
	}

	return m
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// RecordConnectionAccepted increments the accepted connections counter.
func (m *Metrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
}

// RecordConnectionClosed increments the closed connections counter.
func (m *Metrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsClosed.Inc()
}

// RecordConnectionForceClosed increments the force-closed counter.
func (m *Metrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.ConnectionsForceClosed.Inc()
}

// SetActiveConnections updates the active sessions gauge.
func (m *Metrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(count))
}

// RecordAcceptError increments the accept failure counter.
func (m *Metrics) RecordAcceptError() {
	if m == nil {
		return
	}
	m.AcceptErrors.Inc()
}

// RecordFrame counts one APDU of the given kind and size.
func (m *Metrics) RecordFrame(kind string, size int) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(kind).Inc()
	m.FrameSize.Observe(float64(size))
}

// AddResyncBytes adds n discarded noise bytes.
func (m *Metrics) AddResyncBytes(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.ResyncBytes.Add(float64(n))
}

// RecordDroppedFrame counts a frame that could not be classified.
func (m *Metrics) RecordDroppedFrame() {
	if m == nil {
		return
	}
	m.DroppedFrames.Inc()
}

// RecordTermination counts an ended session and its lifetime.
func (m *Metrics) RecordTermination(reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.Terminations.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(lifetime.Seconds())
}

// RecordSinkError counts a failed delivery to the named sink.
func (m *Metrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}
