package api

import "time"

// Config configures the HTTP API server.
type Config struct {
	// Host is the address to bind. Empty binds all interfaces.
	Host string

	// Port is the HTTP port. Default: 8081
	Port int

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Default: 10s
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive idle limit. Default: 60s
	IdleTimeout time.Duration
}

// applyDefaults fills in zero values.
func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8081
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
