package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 120, cfg.RateLimit.DefaultRatePerMinute)
	assert.Equal(t, 20, cfg.RateLimit.DefaultBurst)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.IdleTimeout)
	assert.Contains(t, cfg.RateLimit.ExemptPaths, "/health")
	assert.Equal(t, 5, cfg.Breaker.Defaults.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Defaults.RecoveryTimeout)
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  addr: ":9090"
ratelimit:
  default_rate_per_minute: 60
  default_burst: 10
  idle_timeout: 5m
  categories:
    - name: auth
      patterns: ["/api/v1/auth"]
      rate_per_minute: 10
      burst: 3
breaker:
  defaults:
    failure_threshold: 7
    call_timeout: 2s
  dependencies:
    payments:
      failure_threshold: 2
      recovery_timeout: 45s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 60, cfg.RateLimit.DefaultRatePerMinute)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.IdleTimeout)
	require.Len(t, cfg.RateLimit.Categories, 1)
	assert.Equal(t, "auth", cfg.RateLimit.Categories[0].Name)
	assert.Equal(t, 10, cfg.RateLimit.Categories[0].RatePerMinute)

	assert.Equal(t, 7, cfg.Breaker.Defaults.FailureThreshold)
	assert.Equal(t, 2*time.Second, cfg.Breaker.Defaults.CallTimeout)
	require.Contains(t, cfg.Breaker.Dependencies, "payments")
	assert.Equal(t, 2, cfg.Breaker.Dependencies["payments"].FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.Breaker.Dependencies["payments"].RecoveryTimeout)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", `
ratelimit:
  default_rate_per_minute: -5
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_rate_per_minute")
}

func TestLoadRejectsCategoryWithoutPatterns(t *testing.T) {
	path := writeFile(t, "config.yaml", `
ratelimit:
  categories:
    - name: auth
      rate_per_minute: 10
      burst: 3
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no patterns")
}

func TestLoadBreakerRulesFile(t *testing.T) {
	rulesPath := writeFile(t, "breakers.yaml", `
payments:
  failure_threshold: 3
  recovery_timeout: 20s
search:
  failure_threshold: 10
  call_timeout: 1s
`)

	rules, err := LoadBreakerRules(rulesPath)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, 3, rules["payments"].FailureThreshold)
	assert.Equal(t, 20*time.Second, rules["payments"].RecoveryTimeout)
	assert.Equal(t, time.Second, rules["search"].CallTimeout)
}

func TestLoadMergesRulesFileWithInlineOverridesWinning(t *testing.T) {
	rulesPath := writeFile(t, "breakers.yaml", `
payments:
  failure_threshold: 3
search:
  failure_threshold: 10
`)
	path := writeFile(t, "config.yaml", `
breaker:
  rules_file: `+rulesPath+`
  dependencies:
    payments:
      failure_threshold: 9
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Breaker.Dependencies["payments"].FailureThreshold, "inline wins")
	assert.Equal(t, 10, cfg.Breaker.Dependencies["search"].FailureThreshold, "file fills gaps")
}
