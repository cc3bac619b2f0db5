// Package config loads and validates the resilgate deployment configuration
// from a yaml file with environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/halcyonlabs/resilgate/internal/breaker"
)

// Config is the root deployment configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Breaker   BreakerSection  `mapstructure:"breaker"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// CategoryConfig is one request category with its own admission limits.
type CategoryConfig struct {
	Name          string   `mapstructure:"name"`
	Patterns      []string `mapstructure:"patterns"`
	RatePerMinute int      `mapstructure:"rate_per_minute"`
	Burst         int      `mapstructure:"burst"`
	Cost          int      `mapstructure:"cost"`
}

// RateLimitConfig tunes the admission gate.
type RateLimitConfig struct {
	DefaultRatePerMinute int              `mapstructure:"default_rate_per_minute"`
	DefaultBurst         int              `mapstructure:"default_burst"`
	IdleTimeout          time.Duration    `mapstructure:"idle_timeout"`
	ExemptPaths          []string         `mapstructure:"exempt_paths"`
	AllowPrivateIPs      bool             `mapstructure:"allow_private_ips"`
	Categories           []CategoryConfig `mapstructure:"categories"`
}

// BreakerSection tunes the circuit breakers: one default set plus
// per-dependency overrides, optionally loaded from a separate rules file.
type BreakerSection struct {
	Defaults     breaker.Config            `mapstructure:"defaults"`
	Dependencies map[string]breaker.Config `mapstructure:"dependencies"`
	RulesFile    string                    `mapstructure:"rules_file"`
}

// UpstreamConfig names the demo dependency proxied through the breaker.
type UpstreamConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// Validate rejects configurations that would disable or corrupt the
// protective layer.
func (c *Config) Validate() error {
	if c.RateLimit.DefaultRatePerMinute <= 0 {
		return fmt.Errorf("ratelimit.default_rate_per_minute must be positive, got %d", c.RateLimit.DefaultRatePerMinute)
	}
	if c.RateLimit.DefaultBurst <= 0 {
		return fmt.Errorf("ratelimit.default_burst must be positive, got %d", c.RateLimit.DefaultBurst)
	}
	if c.RateLimit.IdleTimeout <= 0 {
		return fmt.Errorf("ratelimit.idle_timeout must be positive, got %s", c.RateLimit.IdleTimeout)
	}
	for _, cat := range c.RateLimit.Categories {
		if cat.Name == "" {
			return fmt.Errorf("ratelimit category with patterns %v has no name", cat.Patterns)
		}
		if cat.RatePerMinute <= 0 || cat.Burst <= 0 {
			return fmt.Errorf("ratelimit category %q must have positive rate and burst", cat.Name)
		}
		if len(cat.Patterns) == 0 {
			return fmt.Errorf("ratelimit category %q has no patterns", cat.Name)
		}
	}
	if c.Breaker.Defaults.FailureThreshold < 0 || c.Breaker.Defaults.SuccessThreshold < 0 {
		return fmt.Errorf("breaker thresholds must not be negative")
	}
	return nil
}
