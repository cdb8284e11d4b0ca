package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// minimalValidConfig returns a defaulted RPCGuardConfig for testing.
func minimalValidConfig() *RPCGuardConfig {
	cfg := &RPCGuardConfig{}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	if err := minimalValidConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_ZeroCapacityAllowed(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.RateLimit.Capacity = intPtr(0)
	cfg.ConcurrentLimit.Capacity = intPtr(0)

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with zero capacity unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*RPCGuardConfig)
		wantErr string
	}{
		{
			name:    "negative rate capacity",
			mutate:  func(c *RPCGuardConfig) { c.RateLimit.Capacity = intPtr(-1) },
			wantErr: "RateLimit.Capacity must be at least 0",
		},
		{
			name:    "negative concurrent capacity",
			mutate:  func(c *RPCGuardConfig) { c.ConcurrentLimit.Capacity = intPtr(-3) },
			wantErr: "ConcurrentLimit.Capacity must be at least 0",
		},
		{
			name:    "missing capacity",
			mutate:  func(c *RPCGuardConfig) { c.RateLimit.Capacity = nil },
			wantErr: "RateLimit.Capacity is required",
		},
		{
			name:    "bad interval",
			mutate:  func(c *RPCGuardConfig) { c.RateLimit.Interval = "fast" },
			wantErr: "RateLimit.Interval must be a positive duration",
		},
		{
			name:    "zero interval",
			mutate:  func(c *RPCGuardConfig) { c.RateLimit.Interval = "0s" },
			wantErr: "RateLimit.Interval must be a positive duration",
		},
		{
			name:    "unknown key strategy",
			mutate:  func(c *RPCGuardConfig) { c.ConcurrentLimit.Key = "user" },
			wantErr: "ConcurrentLimit.Key must be 'ip' or 'public_key'",
		},
		{
			name:    "bad metric name",
			mutate:  func(c *RPCGuardConfig) { c.RateLimit.MetricName = "rate-limits" },
			wantErr: "RateLimit.MetricName must be a valid Prometheus metric name",
		},
		{
			name:    "bad log level",
			mutate:  func(c *RPCGuardConfig) { c.Server.LogLevel = "verbose" },
			wantErr: "Server.LogLevel must be one of",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *RPCGuardConfig) { c.Server.HTTPAddr = "localhost" },
			wantErr: "Server.HTTPAddr must be a valid host:port",
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *RPCGuardConfig) { c.Server.TLSCertFile = "cert.pem" },
			wantErr: "Server.TLSKeyFile is required when TLSCertFile is set",
		},
		{
			name: "missing tls files",
			mutate: func(c *RPCGuardConfig) {
				c.Server.TLSCertFile = "/nonexistent/cert.pem"
				c.Server.TLSKeyFile = "/nonexistent/key.pem"
			},
			wantErr: "Server.TLSCertFile must be an existing file",
		},
		{
			name:    "unknown event store",
			mutate:  func(c *RPCGuardConfig) { c.Events.Store = "kafka" },
			wantErr: "Events.Store must be one of: memory file redis",
		},
		{
			name: "redis store without address",
			mutate: func(c *RPCGuardConfig) {
				c.Events.Enabled = true
				c.Events.Store = "redis"
			},
			wantErr: "events.redis.addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := minimalValidConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_RedisStore(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Events.Enabled = true
	cfg.Events.Store = "redis"
	cfg.Events.Redis.Addr = "localhost:6379"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_TLSFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	for _, p := range []string{certFile, keyFile} {
		if err := os.WriteFile(p, []byte("pem"), 0600); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	cfg := minimalValidConfig()
	if cfg.Server.TLSEnabled() {
		t.Error("TLSEnabled() = true without files")
	}
	cfg.Server.TLSCertFile = certFile
	cfg.Server.TLSKeyFile = keyFile

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if !cfg.Server.TLSEnabled() {
		t.Error("TLSEnabled() = false with both files set")
	}
}
