package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for rpcguard.yaml/.yml in standard locations.
// An explicit extension is required so the rpcguard binary itself never matches.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then returns ConfigFileNotFoundError, which callers ignore.
		viper.SetConfigName("rpcguard")
		viper.SetConfigType("yaml")
	}

	// RPCGUARD_RATE_LIMIT_CAPACITY overrides rate_limit.capacity
	viper.SetEnvPrefix("RPCGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{
		".",
		filepath.Join(home, ".rpcguard"),
		"/etc/rpcguard",
	})
}

// findConfigFileInPaths returns the first rpcguard.yaml or rpcguard.yml found
// in paths, or an empty string.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "rpcguard"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// envKeys lists every scalar key that can be overridden from the environment.
var envKeys = []string{
	"server.http_addr",
	"server.log_level",
	"server.trust_proxy",
	"server.tls_cert_file",
	"server.tls_key_file",

	"logger.enabled",
	"logger.log_ip",

	"rate_limit.enabled",
	"rate_limit.capacity",
	"rate_limit.interval",
	"rate_limit.key",
	"rate_limit.metric_name",
	"rate_limit.shards",

	"concurrent_limit.enabled",
	"concurrent_limit.capacity",
	"concurrent_limit.key",

	"tracing.enabled",
	"tracing.pretty_print",

	"events.enabled",
	"events.store",
	"events.buffer_size",
	"events.channel_size",
	"events.batch_size",
	"events.flush_interval",
	"events.file.dir",
	"events.file.retention_days",
	"events.file.max_file_size_mb",
	"events.redis.addr",
	"events.redis.password",
	"events.redis.db",
	"events.redis.prefix",
	"events.redis.ttl",
	"events.redis.track_keys",

	"dev_mode",
}

// bindNestedEnvKeys binds nested keys so that Unmarshal sees values that
// only exist in the environment.
func bindNestedEnvKeys() {
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults and validates.
func LoadConfig() (*RPCGuardConfig, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*RPCGuardConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file: run from defaults and environment only.
	}

	var cfg RPCGuardConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
