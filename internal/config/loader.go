// loader.go: viper-based configuration loading with env overrides
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/halcyonlabs/resilgate/internal/breaker"
)

// Load reads the configuration from path (or the default search locations
// when path is empty), applies RESILGATE_ environment overrides, fills
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("RESILGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/resilgate")
	}

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine when no explicit path was given; defaults and
		// env cover a minimal deployment.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if path != "" || !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Breaker.RulesFile != "" {
		rules, err := LoadBreakerRules(cfg.Breaker.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load breaker rules: %w", err)
		}
		if cfg.Breaker.Dependencies == nil {
			cfg.Breaker.Dependencies = make(map[string]breaker.Config, len(rules))
		}
		// File rules fill gaps; inline dependency configs win.
		for name, rule := range rules {
			if _, ok := cfg.Breaker.Dependencies[name]; !ok {
				cfg.Breaker.Dependencies[name] = rule
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// breakerRule mirrors breaker.Config for the rules file, with durations as
// strings so "30s" style values parse.
type breakerRule struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	SuccessThreshold int    `yaml:"success_threshold"`
	RecoveryTimeout  string `yaml:"recovery_timeout"`
	FailureWindow    string `yaml:"failure_window"`
	CallTimeout      string `yaml:"call_timeout"`
}

func (r breakerRule) toConfig() (breaker.Config, error) {
	cfg := breaker.Config{
		FailureThreshold: r.FailureThreshold,
		SuccessThreshold: r.SuccessThreshold,
	}
	for _, d := range []struct {
		raw  string
		dest *time.Duration
	}{
		{r.RecoveryTimeout, &cfg.RecoveryTimeout},
		{r.FailureWindow, &cfg.FailureWindow},
		{r.CallTimeout, &cfg.CallTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return breaker.Config{}, err
		}
		*d.dest = parsed
	}
	return cfg, nil
}

// LoadBreakerRules reads a standalone yaml file mapping dependency names to
// breaker tuning.
func LoadBreakerRules(path string) (map[string]breaker.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := make(map[string]breakerRule)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid breaker rules yaml: %w", err)
	}
	rules := make(map[string]breaker.Config, len(raw))
	for name, rule := range raw {
		cfg, err := rule.toConfig()
		if err != nil {
			return nil, fmt.Errorf("breaker rule %q: %w", name, err)
		}
		rules[name] = cfg
	}
	return rules, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")

	v.SetDefault("ratelimit.default_rate_per_minute", 120)
	v.SetDefault("ratelimit.default_burst", 20)
	v.SetDefault("ratelimit.idle_timeout", 10*time.Minute)
	v.SetDefault("ratelimit.exempt_paths", []string{"/health", "/metrics"})

	v.SetDefault("breaker.defaults.failure_threshold", 5)
	v.SetDefault("breaker.defaults.success_threshold", 2)
	v.SetDefault("breaker.defaults.recovery_timeout", 30*time.Second)
	v.SetDefault("breaker.defaults.failure_window", 60*time.Second)
	v.SetDefault("breaker.defaults.call_timeout", 5*time.Second)

	v.SetDefault("upstream.name", "upstream")
	v.SetDefault("upstream.url", "http://localhost:9000")
}
