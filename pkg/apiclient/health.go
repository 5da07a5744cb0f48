package apiclient

import (
	"context"
	"time"
)

// Health is the liveness payload.
type Health struct {
	Service   string    `json:"service"`
	StartedAt time.Time `json:"started_at"`
	UptimeSec int64     `json:"uptime_sec"`
}

// Uptime returns the reported uptime.
func (h *Health) Uptime() time.Duration {
	return time.Duration(h.UptimeSec) * time.Second
}

// Readiness is the readiness payload.
type Readiness struct {
	ActiveSessions int `json:"active_sessions"`
	MaxConnections int `json:"max_connections"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Ready calls GET /health/ready. A server that is not ready yields an
// *APIError for which IsUnavailable is true.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	var r Readiness
	if err := c.get(ctx, "/health/ready", &r); err != nil {
		return nil, err
	}
	return &r, nil
}
