// Copyright 2025 Lumina Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration management for the reconciler
// process.
//
// The process requires configuration for:
//   - Where the Instance Store lives (a Postgres DSN)
//   - Where the Price/Blacklist/AMI cache lives (a Redis address)
//   - Where pool lock files are kept
//   - Process operational settings (tick interval, provider client tuning)
//
// Configuration can be loaded from YAML files or environment variables.
// Uses Viper for robust configuration management with automatic env binding.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete process configuration.
type Config struct {
	// StoreDSN is the Postgres connection string for the Instance Store.
	StoreDSN string `yaml:"storeDSN"`

	// RedisAddr is the host:port of the Price/Blacklist/AMI cache. Empty
	// means run against the in-memory cache instead (local development).
	RedisAddr string `yaml:"redisAddr,omitempty"`

	// LockDir is the directory pool lock files are created in.
	// Default: /var/run/spotmanagerd
	LockDir string `yaml:"lockDir,omitempty"`

	// LogLevel controls the verbosity of logs.
	// Valid values: debug, info, warn, error
	// Default: info
	LogLevel string `yaml:"logLevel,omitempty"`

	// MetricsBindAddress is the address the metrics endpoint binds to.
	// Default: :8080
	MetricsBindAddress string `yaml:"metricsBindAddress,omitempty"`

	// HealthProbeBindAddress is the address the health probe endpoint binds to.
	// Default: :8081
	HealthProbeBindAddress string `yaml:"healthProbeBindAddress,omitempty"`

	// TickInterval is how often the scheduler sweeps every pool and calls
	// Reconcile on each. Per-pool cadence is separately governed by each
	// pool's own cycle_interval; this is the scheduler's polling cadence.
	// Format: Go duration string (e.g., "30s", "1m")
	// Default: 30s
	TickInterval string `yaml:"tickInterval,omitempty"`

	// Provider contains tuning settings for the Provider Adapter's client.
	Provider ProviderConfig `yaml:"provider,omitempty"`
}

// ProviderConfig contains settings for the cloud provider client.
type ProviderConfig struct {
	// MaxRetries is the maximum number of retries for provider API calls
	// at the SDK transport level (distinct from the reconciler's own
	// no-internal-retry policy between ticks).
	// Default: 3
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// RetryDelay is the initial delay between SDK-level retries.
	// Format: Go duration string (e.g., "100ms", "1s")
	// Default: 100ms
	RetryDelay string `yaml:"retryDelay,omitempty"`

	// HTTPTimeout is the timeout for HTTP requests to the provider API.
	// Format: Go duration string (e.g., "10s", "30s")
	// Default: 10s
	HTTPTimeout string `yaml:"httpTimeout,omitempty"`

	// EndpointURL overrides the provider API endpoint, for testing against
	// LocalStack. Empty means production AWS.
	EndpointURL string `yaml:"endpointURL,omitempty"`
}

// Load loads configuration from a YAML file and validates it.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SPOTMANAGERD_* prefix)
//  2. Configuration file values
//  3. Default values
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("lockDir", "/var/run/spotmanagerd")
	v.SetDefault("logLevel", "info")
	v.SetDefault("metricsBindAddress", ":8080")
	v.SetDefault("healthProbeBindAddress", ":8081")
	v.SetDefault("tickInterval", "30s")
	v.SetDefault("provider.maxRetries", 3)
	v.SetDefault("provider.retryDelay", "100ms")
	v.SetDefault("provider.httpTimeout", "10s")

	v.SetEnvPrefix("SPOTMANAGERD")
	_ = v.BindEnv("storeDSN", "SPOTMANAGERD_STORE_DSN")
	_ = v.BindEnv("redisAddr", "SPOTMANAGERD_REDIS_ADDR")
	_ = v.BindEnv("lockDir", "SPOTMANAGERD_LOCK_DIR")
	_ = v.BindEnv("logLevel", "SPOTMANAGERD_LOG_LEVEL")
	_ = v.BindEnv("metricsBindAddress", "SPOTMANAGERD_METRICS_BIND_ADDRESS")
	_ = v.BindEnv("healthProbeBindAddress", "SPOTMANAGERD_HEALTH_PROBE_BIND_ADDRESS")
	_ = v.BindEnv("tickInterval", "SPOTMANAGERD_TICK_INTERVAL")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	// coverage:ignore - Viper unmarshal errors are extremely rare and difficult to trigger
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.StoreDSN == "" {
		return fmt.Errorf("storeDSN must be set")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.TickInterval != "" {
		if _, err := time.ParseDuration(c.TickInterval); err != nil {
			return fmt.Errorf("invalid tick interval %q: %w", c.TickInterval, err)
		}
	}
	if c.Provider.RetryDelay != "" {
		if _, err := time.ParseDuration(c.Provider.RetryDelay); err != nil {
			return fmt.Errorf("invalid provider retry delay %q: %w", c.Provider.RetryDelay, err)
		}
	}
	if c.Provider.HTTPTimeout != "" {
		if _, err := time.ParseDuration(c.Provider.HTTPTimeout); err != nil {
			return fmt.Errorf("invalid provider HTTP timeout %q: %w", c.Provider.HTTPTimeout, err)
		}
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.maxRetries must be >= 0")
	}

	return nil
}

// GetTickInterval returns the parsed scheduler tick interval.
// Returns 30 seconds if not configured (the default value).
func (c *Config) GetTickInterval() time.Duration {
	return parseDurationOrDefault(c.TickInterval, 30*time.Second)
}

// GetProviderRetryDelay returns the parsed provider SDK retry delay.
// Returns 100ms if not configured (the default value).
func (c *Config) GetProviderRetryDelay() time.Duration {
	return parseDurationOrDefault(c.Provider.RetryDelay, 100*time.Millisecond)
}

// GetProviderHTTPTimeout returns the parsed provider HTTP timeout.
// Returns 10 seconds if not configured (the default value).
func (c *Config) GetProviderHTTPTimeout() time.Duration {
	return parseDurationOrDefault(c.Provider.HTTPTimeout, 10*time.Second)
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		// Should never happen since Validate() checks this.
		return def
	}
	return d
}
