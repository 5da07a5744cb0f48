// Package config loads the iec104d settings.
//
// Settings are layered, lowest to highest precedence:
//  1. Built-in defaults
//  2. <config-dir>/default.yaml (required)
//  3. <config-dir>/<env>.yaml (optional, env from APP_ENV, default "development")
//  4. Environment variables with the APP_ prefix (APP_SERVER_PORT=2404)
//
// The resulting *Config is shared read-only by every session and must not be
// mutated after Load returns.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/marmos91/iec104d/internal/bytesize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix of environment overrides (APP_SERVER_PORT).
	EnvPrefix = "APP"

	// EnvVar selects the environment specific overlay file.
	EnvVar = "APP_ENV"

	DefaultEnv = "development"
	DefaultDir = "./config"
	BaseFile   = "default"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	NATS      NATSConfig      `mapstructure:"nats" yaml:"nats"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`

	// GatewayID identifies this instance in published frames and the
	// session registry.
	GatewayID string `mapstructure:"gateway_id" validate:"required" yaml:"gateway_id"`
}

// ServerConfig controls the IEC 104 listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	// MaxConnections bounds the number of concurrently served sessions.
	// Further connections wait in the listen backlog.
	MaxConnections int `mapstructure:"max_connections" validate:"min=1" yaml:"max_connections"`

	// BufferSize is the per-read scratch buffer size. It bounds a single
	// read, not the reassembly buffer.
	BufferSize bytesize.ByteSize `mapstructure:"buffer_size" validate:"min=1" yaml:"buffer_size"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// StatsInterval logs session statistics periodically. Zero disables it.
	StatsInterval time.Duration `mapstructure:"stats_interval" validate:"gte=0" yaml:"stats_interval"`
}

// TimeoutsConfig groups the server timers.
type TimeoutsConfig struct {
	// Connection is the idle window granted to every wait for data.
	Connection time.Duration `mapstructure:"connection" validate:"gt=0" yaml:"connection"`

	// RetryDelay is the back-off after a failed accept.
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0" yaml:"retry_delay"`

	// PartialFrame ends a session whose buffered partial frame has not
	// completed within this long of its first byte. Zero disables the check.
	PartialFrame time.Duration `mapstructure:"partial_frame" validate:"gte=0" yaml:"partial_frame"`

	// Shutdown bounds the graceful stop of the server.
	Shutdown time.Duration `mapstructure:"shutdown" validate:"gt=0" yaml:"shutdown"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig toggles Prometheus collection. Metrics are served by the
// admin API at /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
}

// NATSConfig configures the frame publisher.
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	URL           string `mapstructure:"url" validate:"required_if=Enabled true" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" validate:"required_if=Enabled true" yaml:"subject_prefix"`
}

// RedisConfig configures the live session registry.
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr       string        `mapstructure:"addr" validate:"required_if=Enabled true" yaml:"addr"`
	Password   string        `mapstructure:"password" yaml:"password,omitempty"`
	DB         int           `mapstructure:"db" validate:"gte=0" yaml:"db"`
	KeyPrefix  string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"gte=0" yaml:"session_ttl"`
}

// ServerAddr returns host:port of the IEC 104 listener.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ConnectionTimeout returns the per-wait idle window.
func (c *Config) ConnectionTimeout() time.Duration {
	return c.Server.Timeouts.Connection
}

// RetryDelay returns the accept-error back-off.
func (c *Config) RetryDelay() time.Duration {
	return c.Server.Timeouts.RetryDelay
}

// APIAddr returns the listen address of the admin API.
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.API.Port))
}

// ResolveEnv returns env if set, otherwise $APP_ENV, otherwise DefaultEnv.
func ResolveEnv(env string) string {
	if env != "" {
		return env
	}
	if v := os.Getenv(EnvVar); v != "" {
		return v
	}
	return DefaultEnv
}

// Load reads the layered configuration from dir for the given environment.
// An empty dir means DefaultDir and an empty env is resolved by ResolveEnv.
//
// A missing default.yaml, an unreadable overlay, a value of the wrong type
// and a failed validation are all returned as errors.
func Load(dir, env string) (*Config, error) {
	if dir == "" {
		dir = DefaultDir
	}
	env = ResolveEnv(env)

	v := viper.New()
	setupViper(v)
	setViperDefaults(v)

	base := filepath.Join(dir, BaseFile+".yaml")
	v.SetConfigFile(base)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read base config %s: %w", base, err)
	}

	overlay := filepath.Join(dir, env+".yaml")
	if err := mergeOptional(v, overlay); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// mergeOptional merges path into v when it exists.
func mergeOptional(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat config overlay %s: %w", path, err)
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to merge config overlay %s: %w", path, err)
	}
	return nil
}

// setupViper wires environment overrides: APP_SERVER_TIMEOUTS_CONNECTION=5s
// maps to server.timeouts.connection.
func setupViper(v *viper.Viper) {
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// configDecodeHooks returns a combined decode hook for ByteSize and
// time.Duration values.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings ("1KiB") and integers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size %d", v)
			}
			return bytesize.ByteSize(v), nil
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size %d", v)
			}
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size %v", v)
			}
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings ("30s") to time.Duration. Raw
// integers are taken as nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
