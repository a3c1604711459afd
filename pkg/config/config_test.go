package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Concurrency)
	assert.Equal(t, 10, cfg.BatchMultiplier)
	assert.Equal(t, 5, cfg.PoolSize)
	assert.Equal(t, PolicyDrop, cfg.Unconfirmed)
	assert.Equal(t, 10*time.Second, cfg.Detection.TimingThreshold)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lostsec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
variant: xss
concurrency: 8
pool_size: 0
unconfirmed: report
probe:
  timeout: 3s
  headers:
    X-Test: "1"
  cookie: "session=abc"
rate_limit:
  requests_per_second: 20
  per_host: true
browser:
  observe: 500ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "xss", cfg.Variant)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 0, cfg.PoolSize)
	assert.Equal(t, PolicyReport, cfg.Unconfirmed)
	assert.Equal(t, 3*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, "1", cfg.Probe.Headers["X-Test"])
	assert.Equal(t, 20.0, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.RateLimit.PerHost)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.Observe)

	// untouched keys keep defaults
	assert.Equal(t, 10, cfg.BatchMultiplier)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: [1, 2"), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown variant", func(c *Config) { c.Variant = "rce" }, ErrInvalidConfig},
		{"missing variant", func(c *Config) { c.Variant = "" }, ErrMissingRequired},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConfig},
		{"zero batch multiplier", func(c *Config) { c.BatchMultiplier = 0 }, ErrInvalidConfig},
		{"negative pool", func(c *Config) { c.PoolSize = -1 }, ErrInvalidConfig},
		{"bad policy", func(c *Config) { c.Unconfirmed = "maybe" }, ErrInvalidConfig},
		{"bad mode", func(c *Config) { c.Probe.Mode = "body" }, ErrInvalidConfig},
		{"bad confirmer", func(c *Config) { c.Detection.Confirmer = "oracle" }, ErrInvalidConfig},
		{"custom without detector", func(c *Config) { c.Variant = "custom" }, ErrMissingRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = 0
	cfg.Unconfirmed = "x"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "unconfirmed")
}
