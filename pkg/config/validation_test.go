package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' error on server.port, got: %v", err)
	}
}

func TestValidate_ZeroIdleTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Timeouts.Connection = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero idle timeout")
	}
	if !strings.Contains(err.Error(), "server.timeouts.connection") {
		t.Errorf("Expected error on server.timeouts.connection, got: %v", err)
	}
}

func TestValidate_ZeroPartialFrameAllowed(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Timeouts.PartialFrame = 0
	cfg.Server.Timeouts.RetryDelay = 0

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected zero partial_frame and retry_delay to be valid, got: %v", err)
	}
}

func TestValidate_EnabledSinksNeedAddresses(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.NATS.Enabled = true
	cfg.NATS.URL = ""
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation errors for enabled sinks without address")
	}
	if !strings.Contains(err.Error(), "nats.url") || !strings.Contains(err.Error(), "redis.addr") {
		t.Errorf("Expected both nats.url and redis.addr to be reported, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_LogLevelNotNormalized(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "warn", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
