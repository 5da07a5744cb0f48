package sink

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/iec104d/pkg/apdu"
	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by NATSPublisher.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// FrameMessage is the JSON document published for every frame. ID is shared
// by the per-kind and ".all" copies of the same frame.
type FrameMessage struct {
	ID         string `json:"id"`
	GatewayID  string `json:"gateway_id"`
	SessionID  uint64 `json:"session_id"`
	RemoteAddr string `json:"remote_addr"`
	Kind       string `json:"kind"`
	Length     int    `json:"length"`
	Raw        string `json:"raw"`
	Timestamp  int64  `json:"ts"`
}

// SessionMessage is the JSON document published on session open and close.
type SessionMessage struct {
	GatewayID  string `json:"gateway_id"`
	SessionID  uint64 `json:"session_id"`
	RemoteAddr string `json:"remote_addr"`
	Event      string `json:"event"`
	Reason     string `json:"reason,omitempty"`
	Timestamp  int64  `json:"ts"`
}

// NATSPublisher publishes each frame to "<prefix>.<kind>" and
// "<prefix>.all", and session events to "<prefix>.session".
type NATSPublisher struct {
	pub    Publisher
	prefix string
	now    func() time.Time
	newID  func() string
}

// NewNATSPublisher creates a publisher on pub using subject prefix.
func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	return &NATSPublisher{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// DialNATS connects to the NATS server at url and keeps reconnecting for the
// life of the process.
func DialNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Name implements Sink.
func (p *NATSPublisher) Name() string { return "nats" }

// FrameSubject returns the per-kind subject for k.
func (p *NATSPublisher) FrameSubject(k apdu.Kind) string {
	return p.prefix + "." + strings.ToLower(k.String())
}

// FrameReceived implements Sink.
func (p *NATSPublisher) FrameReceived(_ context.Context, s Session, f apdu.Frame) error {
	data, err := json.Marshal(FrameMessage{
		ID:         p.newID(),
		GatewayID:  s.GatewayID,
		SessionID:  s.ID,
		RemoteAddr: s.RemoteAddr,
		Kind:       f.Kind.String(),
		Length:     f.Len(),
		Raw:        hex.EncodeToString(f.Raw),
		Timestamp:  f.CapturedAtMillis(),
	})
	if err != nil {
		return err
	}

	if err := p.pub.Publish(p.FrameSubject(f.Kind), data); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	if err := p.pub.Publish(p.prefix+".all", data); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

// SessionOpened implements Sink.
func (p *NATSPublisher) SessionOpened(_ context.Context, s Session) error {
	return p.publishSession(s, "opened", "")
}

// SessionClosed implements Sink.
func (p *NATSPublisher) SessionClosed(_ context.Context, s Session, reason string) error {
	return p.publishSession(s, "closed", reason)
}

func (p *NATSPublisher) publishSession(s Session, event, reason string) error {
	data, err := json.Marshal(SessionMessage{
		GatewayID:  s.GatewayID,
		SessionID:  s.ID,
		RemoteAddr: s.RemoteAddr,
		Event:      event,
		Reason:     reason,
		Timestamp:  p.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := p.pub.Publish(p.prefix+".session", data); err != nil {
		return fmt.Errorf("publish session %s: %w", event, err)
	}
	return nil
}
