package config

import (
	"strings"
	"time"

	"github.com/marmos91/iec104d/internal/bytesize"
	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 2404
	DefaultMaxConnections = 100
	DefaultBufferSize     = 1 * bytesize.KiB

	DefaultConnectionTimeout   = 30 * time.Second
	DefaultRetryDelay          = 100 * time.Millisecond
	DefaultPartialFrameTimeout = 60 * time.Second
	DefaultShutdownTimeout     = 10 * time.Second

	DefaultAPIPort         = 8081
	DefaultAPIReadTimeout  = 10 * time.Second
	DefaultAPIWriteTimeout = 10 * time.Second
	DefaultOTLPEndpoint    = "localhost:4317"
	DefaultNATSURL         = "nats://localhost:4222"
	DefaultSubjectPrefix   = "iec104.uplink"
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisKeyPrefix  = "iec104:sess:"
	DefaultRedisSessionTTL = 5 * time.Minute
	DefaultGatewayID       = "node-01"
)

// setViperDefaults registers every key so AutomaticEnv can override keys
// that are absent from the YAML files.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.max_connections", DefaultMaxConnections)
	v.SetDefault("server.buffer_size", DefaultBufferSize.String())
	v.SetDefault("server.timeouts.connection", DefaultConnectionTimeout.String())
	v.SetDefault("server.timeouts.retry_delay", DefaultRetryDelay.String())
	v.SetDefault("server.timeouts.partial_frame", DefaultPartialFrameTimeout.String())
	v.SetDefault("server.timeouts.shutdown", DefaultShutdownTimeout.String())
	v.SetDefault("server.stats_interval", "0s")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", DefaultAPIPort)
	v.SetDefault("api.read_timeout", DefaultAPIReadTimeout.String())
	v.SetDefault("api.write_timeout", DefaultAPIWriteTimeout.String())

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", DefaultOTLPEndpoint)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", DefaultNATSURL)
	v.SetDefault("nats.subject_prefix", DefaultSubjectPrefix)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)
	v.SetDefault("redis.session_ttl", DefaultRedisSessionTTL.String())

	v.SetDefault("gateway_id", DefaultGatewayID)
}

// ApplyDefaults fills zero values with defaults and normalizes the log
// level. max_connections and the idle timeout are left alone so that an
// explicit zero fails validation; retry_delay and partial_frame accept zero.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyLoggingDefaults(&cfg.Logging)

	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = DefaultAPIReadTimeout
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = DefaultAPIWriteTimeout
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = DefaultOTLPEndpoint
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = DefaultNATSURL
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = DefaultSubjectPrefix
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.SessionTTL == 0 {
		cfg.Redis.SessionTTL = DefaultRedisSessionTTL
	}

	if cfg.GatewayID == "" {
		cfg.GatewayID = DefaultGatewayID
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Timeouts.Shutdown == 0 {
		cfg.Timeouts.Shutdown = DefaultShutdownTimeout
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// GetDefaultConfig returns a fully defaulted configuration, as if loaded
// from an empty default.yaml.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			MaxConnections: DefaultMaxConnections,
			Timeouts: TimeoutsConfig{
				Connection:   DefaultConnectionTimeout,
				RetryDelay:   DefaultRetryDelay,
				PartialFrame: DefaultPartialFrameTimeout,
			},
		},
		Telemetry: TelemetryConfig{Insecure: true, SampleRate: 1.0},
	}
	ApplyDefaults(cfg)
	return cfg
}
