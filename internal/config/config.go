/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogLevel    string
	HTTPBind    string
	HTTPPort    int
	InstanceID  string

	// Chains
	LockTimeout time.Duration
	QueueLen    int

	// Data manager overrides keep these tracks out of auto-selection
	ManualTTXT  bool
	ManualHbbTV bool
	ManualDSMCC bool

	// SettingsPath is the YAML snapshot of the output settings. Empty
	// disables persistence.
	SettingsPath string

	// Event forwarding
	NATSURL           string
	NATSToken         string
	NATSSubjectPrefix string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisChannel      string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("EOS_ENV", "development"),
		LogLevel:    getEnv("EOS_LOG_LEVEL", ""),
		HTTPBind:    getEnv("EOS_HTTP_BIND", "127.0.0.1"),
		HTTPPort:    getEnvInt("EOS_HTTP_PORT", 8090),
		InstanceID:  getEnv("EOS_INSTANCE_ID", ""),

		LockTimeout: getEnvDuration("EOS_LOCK_TIMEOUT", 5*time.Second),
		QueueLen:    getEnvInt("EOS_EVENT_QUEUE_LEN", 20),

		ManualTTXT:  getEnvBool("EOS_MANUAL_TTXT", false),
		ManualHbbTV: getEnvBool("EOS_MANUAL_HBBTV", false),
		ManualDSMCC: getEnvBool("EOS_MANUAL_DSMCC", false),

		SettingsPath: getEnv("EOS_SETTINGS_PATH", ""),

		NATSURL:           getEnv("EOS_NATS_URL", ""),
		NATSToken:         getEnv("EOS_NATS_TOKEN", ""),
		NATSSubjectPrefix: getEnv("EOS_NATS_SUBJECT_PREFIX", "eos"),
		RedisAddr:         getEnv("EOS_REDIS_ADDR", ""),
		RedisPassword:     getEnv("EOS_REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("EOS_REDIS_DB", 0),
		RedisChannel:      getEnv("EOS_REDIS_CHANNEL", "eos.events"),

		TracingEnabled:    getEnvBool("EOS_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("EOS_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("EOS_TRACING_SAMPLE_RATE", 1.0),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. Flags layered over Load are validated again by
// the caller.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("EOS_HTTP_PORT %d out of range", c.HTTPPort)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("EOS_LOCK_TIMEOUT must be positive, got %v", c.LockTimeout)
	}
	if c.QueueLen <= 0 {
		return fmt.Errorf("EOS_EVENT_QUEUE_LEN must be positive, got %d", c.QueueLen)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("EOS_TRACING_SAMPLE_RATE %v outside [0,1]", c.TracingSampleRate)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("EOS_LOG_LEVEL %q: %w", c.LogLevel, err)
		}
	}
	if strings.EqualFold(c.Environment, "production") && c.HTTPBind == "0.0.0.0" {
		return fmt.Errorf("EOS_HTTP_BIND must not expose the control API on all interfaces in production")
	}
	return nil
}

// HTTPAddr is the listen address of the control API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("750ms") and plain seconds ("5").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
