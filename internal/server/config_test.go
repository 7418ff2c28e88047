package server

import (
	"flag"
	"io"
	"testing"
	"time"
)

func newTestFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestNewConfigFromEnvDefaults(t *testing.T) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv() error = %v", err)
	}
	want := NewConfig()

	if cfg.Addr != want.Addr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, want.Addr)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != defaultOrigin {
		t.Errorf("AllowedOrigins = %v, want [%s]", cfg.AllowedOrigins, defaultOrigin)
	}
	if cfg.MaxMessageSize != want.MaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want %d", cfg.MaxMessageSize, want.MaxMessageSize)
	}
	if cfg.SendBufferSize != want.SendBufferSize {
		t.Errorf("SendBufferSize = %d, want %d", cfg.SendBufferSize, want.SendBufferSize)
	}
	if cfg.RateLimit != want.RateLimit {
		t.Errorf("RateLimit = %+v, want %+v", cfg.RateLimit, want.RateLimit)
	}
	if cfg.PongTimeout != want.PongTimeout || cfg.WriteTimeout != want.WriteTimeout {
		t.Errorf("timeouts = %s/%s, want %s/%s", cfg.PongTimeout, cfg.WriteTimeout, want.PongTimeout, want.WriteTimeout)
	}
	if cfg.IDScheme != IDSchemeUUID {
		t.Errorf("IDScheme = %q, want %q", cfg.IDScheme, IDSchemeUUID)
	}
	if !cfg.OTelEnabled {
		t.Error("OTelEnabled = false, want true")
	}
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":9999")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RELAY_SEND_BUFFER", "16")
	t.Setenv("RELAY_RATE_LIMIT_BURST", "20")
	t.Setenv("RELAY_RATE_LIMIT_REFILL_INTERVAL", "250ms")
	t.Setenv("RELAY_ID_SCHEME", "counter")
	t.Setenv("RELAY_GREETING", "welcome")

	cfg, err := NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
	if cfg.SendBufferSize != 16 {
		t.Errorf("SendBufferSize = %d, want 16", cfg.SendBufferSize)
	}
	if cfg.RateLimit.Burst != 20 || cfg.RateLimit.RefillInterval != 250*time.Millisecond {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.IDScheme != IDSchemeCounter {
		t.Errorf("IDScheme = %q, want counter", cfg.IDScheme)
	}
	if cfg.Greeting != "welcome" {
		t.Errorf("Greeting = %q, want welcome", cfg.Greeting)
	}
}

func TestNewConfigFromEnvInvalid(t *testing.T) {
	t.Setenv("RELAY_SEND_BUFFER", "lots")
	if _, err := NewConfigFromEnv(); err == nil {
		t.Fatal("NewConfigFromEnv() accepted a non-numeric buffer size")
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":7000")
	t.Setenv("RELAY_GREETING", "from env")

	cfg, err := ParseConfig(newTestFlagSet(), []string{
		"-addr", ":7001",
		"-id-scheme", "counter",
		"-send-buffer", "32",
		"-allowed-origins", "*",
	})
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.Addr != ":7001" {
		t.Errorf("Addr = %q, want :7001", cfg.Addr)
	}
	if cfg.Greeting != "from env" {
		t.Errorf("Greeting = %q, want env value", cfg.Greeting)
	}
	if cfg.IDScheme != IDSchemeCounter || cfg.SendBufferSize != 32 {
		t.Errorf("IDScheme/SendBufferSize = %q/%d", cfg.IDScheme, cfg.SendBufferSize)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
}

func TestParseConfigUnknownFlag(t *testing.T) {
	if _, err := ParseConfig(newTestFlagSet(), []string{"-bogus"}); err == nil {
		t.Fatal("ParseConfig() accepted an unknown flag")
	}
}

func TestSanitizeRestoresDefaults(t *testing.T) {
	cfg := &Config{
		MaxMessageSize: -1,
		SendBufferSize: 0,
		PongTimeout:    -time.Second,
		IDScheme:       "sequential",
		RateLimit:      RateLimitConfig{Burst: -3},
	}
	cfg.Sanitize()

	want := NewConfig()
	if cfg.Addr != want.Addr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, want.Addr)
	}
	if cfg.MaxMessageSize != want.MaxMessageSize || cfg.SendBufferSize != want.SendBufferSize {
		t.Errorf("sizes = %d/%d", cfg.MaxMessageSize, cfg.SendBufferSize)
	}
	if cfg.PongTimeout != want.PongTimeout || cfg.WriteTimeout != want.WriteTimeout || cfg.ShutdownTimeout != want.ShutdownTimeout {
		t.Errorf("timeouts not restored: %+v", cfg)
	}
	if cfg.IDScheme != IDSchemeUUID {
		t.Errorf("IDScheme = %q, want uuid", cfg.IDScheme)
	}
	if cfg.RateLimit != want.RateLimit {
		t.Errorf("RateLimit = %+v, want %+v", cfg.RateLimit, want.RateLimit)
	}
}

func TestPingIntervalBelowPongTimeout(t *testing.T) {
	cfg := NewConfig()
	cfg.PongTimeout = 10 * time.Second
	if got := cfg.PingInterval(); got != 9*time.Second {
		t.Fatalf("PingInterval() = %s, want 9s", got)
	}
}
