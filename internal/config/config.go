// Package config provides configuration types for rpcguard.
//
// Configuration is file-based (rpcguard.yaml) with environment overrides
// (RPCGUARD_*). Every section has usable defaults, so an empty file yields
// the recommended stack: request logging, a rate limit of 10 tokens per
// address refilled every 100ms, and 16 concurrent requests per address.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// RPCGuardConfig is the top-level configuration.
type RPCGuardConfig struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Logger configures the request logging interceptor.
	Logger LoggerConfig `yaml:"logger" mapstructure:"logger"`

	// RateLimit configures the token-bucket interceptor.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// ConcurrentLimit configures the in-flight request interceptor.
	ConcurrentLimit ConcurrentLimitConfig `yaml:"concurrent_limit" mapstructure:"concurrent_limit"`

	// Tracing configures OpenTelemetry spans.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// Events configures recording of admission events.
	Events EventsConfig `yaml:"events" mapstructure:"events"`

	// DevMode enables development features (debug logging, tracing to stdout).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the listen address. Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"required,hostname_port"`

	// LogLevel is one of debug, info, warn, error. Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// TrustProxy takes the caller address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that sets these headers.
	TrustProxy bool `yaml:"trust_proxy" mapstructure:"trust_proxy"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `yaml:"tls_cert_file,omitempty" mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile,omitempty,file"`
	TLSKeyFile  string `yaml:"tls_key_file,omitempty" mapstructure:"tls_key_file" validate:"required_with=TLSCertFile,omitempty,file"`
}

// TLSEnabled reports whether both TLS files are configured.
func (c ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// LoggerConfig configures request logging.
type LoggerConfig struct {
	// Enabled turns request logging on. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// LogIP adds the caller address to every request log line.
	LogIP bool `yaml:"log_ip" mapstructure:"log_ip"`
}

// RateLimitConfig configures the token-bucket limiter.
type RateLimitConfig struct {
	// Enabled turns rate limiting on. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Capacity is the bucket size per key. 0 rejects every request.
	// Defaults to 10.
	Capacity *int `yaml:"capacity" mapstructure:"capacity" validate:"required,min=0"`

	// Interval is the time to refill one token (e.g. "100ms"). Defaults to "100ms".
	Interval string `yaml:"interval" mapstructure:"interval" validate:"required,duration"`

	// Key selects the identity: "ip" or "public_key". Defaults to "ip".
	Key string `yaml:"key" mapstructure:"key" validate:"required,key_strategy"`

	// MetricName is the name of the tracked-keys gauge.
	// Defaults to "rpcguard_rate_limit_number_rate_limits".
	MetricName string `yaml:"metric_name" mapstructure:"metric_name" validate:"required,metric_name"`

	// Shards is the number of lock shards. Defaults to 16.
	Shards int `yaml:"shards" mapstructure:"shards" validate:"omitempty,min=1,max=4096"`
}

// ConcurrentLimitConfig configures the in-flight request limiter.
type ConcurrentLimitConfig struct {
	// Enabled turns concurrency limiting on. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Capacity is the maximum number of in-flight requests per key.
	// 0 rejects every request. Defaults to 16.
	Capacity *int `yaml:"capacity" mapstructure:"capacity" validate:"required,min=0"`

	// Key selects the identity: "ip" or "public_key". Defaults to "ip".
	Key string `yaml:"key" mapstructure:"key" validate:"required,key_strategy"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled exports one span per request to stdout.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// PrettyPrint indents exported spans.
	PrettyPrint bool `yaml:"pretty_print" mapstructure:"pretty_print"`
}

// EventsConfig configures admission event recording.
type EventsConfig struct {
	// Enabled turns event recording on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Store is "memory", "file" or "redis". Defaults to "memory".
	Store string `yaml:"store" mapstructure:"store" validate:"omitempty,oneof=memory file redis"`

	// BufferSize is the number of events kept by the memory store.
	// Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`

	// ChannelSize is the event queue size. Defaults to 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of events written at once. Defaults to 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often pending events are written. Defaults to "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// File configures the JSON Lines store.
	File FileConfig `yaml:"file" mapstructure:"file"`

	// Redis configures the Redis store.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// FileConfig configures the JSON Lines event store.
type FileConfig struct {
	// Dir is where event files are written. Defaults to "./events".
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RetentionDays is how long files are kept. Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB rotates a file once it reaches this size. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
}

// RedisConfig configures the Redis event store.
type RedisConfig struct {
	// Addr is the Redis address. Required when events.store is "redis".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Password is the Redis password.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db" mapstructure:"db" validate:"min=0"`

	// Prefix is the key prefix. Defaults to "rpcguard:admission".
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// TTL is the expiry of per-minute and per-key hashes. Defaults to "24h".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`

	// TrackKeys keeps one counter hash per limiter key.
	TrackKeys bool `yaml:"track_keys" mapstructure:"track_keys"`
}

// Recommended defaults.
const (
	DefaultHTTPAddr                = "127.0.0.1:8080"
	DefaultRateLimitCapacity       = 10
	DefaultRateLimitInterval       = "100ms"
	DefaultConcurrentLimitCapacity = 16
	DefaultKeyStrategy             = "ip"
	DefaultMetricName              = "rpcguard_rate_limit_number_rate_limits"
)

func intPtr(v int) *int { return &v }

// SetDevDefaults applies development defaults: debug logging, caller
// addresses in logs and stdout tracing.
func (c *RPCGuardConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
	c.Logger.LogIP = true
	if !viper.IsSet("tracing.enabled") {
		c.Tracing.Enabled = true
	}
}

// SetDefaults applies default values to unset fields.
func (c *RPCGuardConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("logger.enabled") {
		c.Logger.Enabled = true
	}

	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.Capacity == nil {
		c.RateLimit.Capacity = intPtr(DefaultRateLimitCapacity)
	}
	if c.RateLimit.Interval == "" {
		c.RateLimit.Interval = DefaultRateLimitInterval
	}
	if c.RateLimit.Key == "" {
		c.RateLimit.Key = DefaultKeyStrategy
	}
	if c.RateLimit.MetricName == "" {
		c.RateLimit.MetricName = DefaultMetricName
	}

	if !viper.IsSet("concurrent_limit.enabled") {
		c.ConcurrentLimit.Enabled = true
	}
	if c.ConcurrentLimit.Capacity == nil {
		c.ConcurrentLimit.Capacity = intPtr(DefaultConcurrentLimitCapacity)
	}
	if c.ConcurrentLimit.Key == "" {
		c.ConcurrentLimit.Key = DefaultKeyStrategy
	}

	if c.Events.Store == "" {
		c.Events.Store = "memory"
	}
	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = 1000
	}
	if c.Events.ChannelSize == 0 {
		c.Events.ChannelSize = 1000
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = 100
	}
	if c.Events.FlushInterval == "" {
		c.Events.FlushInterval = "1s"
	}
	if c.Events.File.Dir == "" {
		c.Events.File.Dir = "./events"
	}
	if c.Events.File.RetentionDays == 0 {
		c.Events.File.RetentionDays = 7
	}
	if c.Events.File.MaxFileSizeMB == 0 {
		c.Events.File.MaxFileSizeMB = 100
	}
	if c.Events.Redis.Prefix == "" {
		c.Events.Redis.Prefix = "rpcguard:admission"
	}
	if c.Events.Redis.TTL == "" {
		c.Events.Redis.TTL = "24h"
	}
}

// mustDuration parses a duration that has already passed validation.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// IntervalDuration returns the parsed refill interval.
func (c RateLimitConfig) IntervalDuration() time.Duration {
	return mustDuration(c.Interval)
}

// FlushIntervalDuration returns the parsed flush interval.
func (c EventsConfig) FlushIntervalDuration() time.Duration {
	return mustDuration(c.FlushInterval)
}

// TTLDuration returns the parsed hash expiry.
func (c RedisConfig) TTLDuration() time.Duration {
	return mustDuration(c.TTL)
}
