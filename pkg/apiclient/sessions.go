package apiclient

import (
	"context"
	"strconv"
	"time"
)

// Session is one live IEC 104 session.
type Session struct {
	ID         uint64    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
}

// ListSessions returns the live sessions ordered by id.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.get(ctx, "/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns one live session.
func (c *Client) GetSession(ctx context.Context, id uint64) (*Session, error) {
	var s Session
	if err := c.get(ctx, "/sessions/"+strconv.FormatUint(id, 10), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
