package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.ConfigDir)
	assert.Equal(t, ".cache-db", cfg.CachePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "prod", cfg.Log.Env)
	assert.Equal(t, 4, cfg.Reconcile.Concurrency)
	assert.Equal(t, 4.0, cfg.Cloudflare.RateLimit)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cf-zone-sync.yaml")
	content := `
configDir: ./zones
cachePath: /var/lib/cf-zone-sync/cache
log:
  level: DEBUG
  env: dev
cloudflare:
  token: secret
  accountId: acc-1
  rateLimit: 2
reconcile:
  dryRun: true
  concurrency: 8
metrics:
  textfile: /var/lib/node_exporter/cf_zone_sync.prom
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./zones", cfg.ConfigDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "dev", cfg.Log.Env)
	assert.Equal(t, "secret", cfg.Cloudflare.Token)
	assert.Equal(t, "acc-1", cfg.Cloudflare.AccountID)
	assert.Equal(t, 2.0, cfg.Cloudflare.RateLimit)
	assert.True(t, cfg.Reconcile.DryRun)
	assert.Equal(t, 8, cfg.Reconcile.Concurrency)
	assert.Equal(t, "/var/lib/node_exporter/cf_zone_sync.prom", cfg.Metrics.Textfile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "Config.Log.Level",
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.Cloudflare.BaseURL = "not a url" },
			wantErr: "Config.Cloudflare.BaseURL",
		},
		{
			name:    "too much concurrency",
			mutate:  func(c *Config) { c.Reconcile.Concurrency = 100 },
			wantErr: "Config.Reconcile.Concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
