// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay service.
package server

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Identifier schemes for new connections.
const (
	IDSchemeUUID    = "uuid"
	IDSchemeCounter = "counter"
)

const (
	defaultAddr            = ":8080"
	defaultOrigin          = "http://localhost:8080"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultRateLimitBurst  = 5
	defaultRefillInterval  = time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultPongTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RELAY_RATE_LIMIT_BURST"           envDefault:"5"`
	RefillInterval time.Duration `env:"RELAY_RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Addr            string        `env:"RELAY_ADDR"             envDefault:":8080"`
	AllowedOrigins  []string      `env:"RELAY_ALLOWED_ORIGINS"  envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize  int64         `env:"RELAY_MAX_MESSAGE_SIZE" envDefault:"4096"`
	SendBufferSize  int           `env:"RELAY_SEND_BUFFER"      envDefault:"256"`
	WriteTimeout    time.Duration `env:"RELAY_WRITE_TIMEOUT"    envDefault:"10s"`
	PongTimeout     time.Duration `env:"RELAY_PONG_TIMEOUT"     envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IDScheme        string        `env:"RELAY_ID_SCHEME"        envDefault:"uuid"`
	Greeting        string        `env:"RELAY_GREETING"`
	OTelEndpoint    string        `env:"RELAY_OTEL_ENDPOINT"`
	OTelEnabled     bool          `env:"RELAY_OTEL_ENABLED"     envDefault:"true"`
	RateLimit       RateLimitConfig
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Addr:            defaultAddr,
		AllowedOrigins:  []string{defaultOrigin},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		WriteTimeout:    defaultWriteTimeout,
		PongTimeout:     defaultPongTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		IDScheme:        IDSchemeUUID,
		OTelEnabled:     true,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateLimitBurst,
			RefillInterval: defaultRefillInterval,
		},
	}
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to their defaults.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// ParseConfig loads environment defaults and then lets command-line flags
// override them.
func ParseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		return nil, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "relay HTTP listen address")
	fs.StringVar(&cfg.Greeting, "greeting", cfg.Greeting, "text sent with every hello message")
	fs.StringVar(&cfg.IDScheme, "id-scheme", cfg.IDScheme, "connection id scheme: uuid or counter")
	fs.IntVar(&cfg.SendBufferSize, "send-buffer", cfg.SendBufferSize, "frames queued per client before it is dropped")
	origins := fs.String("allowed-origins", strings.Join(cfg.AllowedOrigins, ","), "comma separated browser origins, * for any")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.AllowedOrigins = parseOrigins(*origins)
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize replaces invalid settings with their defaults.
func (c *Config) Sanitize() {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	switch c.IDScheme {
	case IDSchemeUUID, IDSchemeCounter:
	default:
		c.IDScheme = IDSchemeUUID
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultRateLimitBurst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}
}

// PingInterval is how often keepalive pings are written. It must stay below
// PongTimeout so a healthy peer always answers in time.
func (c *Config) PingInterval() time.Duration {
	return c.PongTimeout * 9 / 10
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
