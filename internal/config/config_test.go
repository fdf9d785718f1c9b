package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "/mango_data/", cfg.Storage.BasePath)
	assert.Equal(t, "Europe/Moscow", cfg.Storage.Timezone)
	assert.Equal(t, "120s", cfg.Storage.Timeout)
	assert.Equal(t, 500, cfg.Cache.IndexPageLimit)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 120*time.Second, cfg.Timeout())
	assert.Zero(t, cfg.MaxDownloadBytes())
	assert.Zero(t, cfg.RefTTL())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
storage:
  oauth_token: tok-123
  base_path: /recordings/
  timezone: UTC
  timeout: 30s
  max_download_size: 50MB
cache:
  dir: /tmp/callvault-cache
  ref_ttl: 72h
  index_page_limit: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tok-123", cfg.Storage.OAuthToken)
	assert.Equal(t, "/recordings/", cfg.Storage.BasePath)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, int64(50*1024*1024), cfg.MaxDownloadBytes())
	assert.Equal(t, 72*time.Hour, cfg.RefTTL())
	assert.Equal(t, 200, cfg.Cache.IndexPageLimit)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "storage: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("STORAGE_OAUTH_TOKEN", "env-token")
	t.Setenv("STORAGE_LOGIN", "env-login")
	t.Setenv("STORAGE_PASSWORD", "env-pass")

	path := writeConfig(t, `
storage:
  oauth_token: file-token
  login: file-login
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Storage.OAuthToken)
	assert.Equal(t, "env-login", cfg.Storage.Login)
	assert.Equal(t, "env-pass", cfg.Storage.Password)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timezone", func(c *Config) { c.Storage.Timezone = "Mars/Olympus" }},
		{"bad timeout", func(c *Config) { c.Storage.Timeout = "soon" }},
		{"zero timeout", func(c *Config) { c.Storage.Timeout = "0s" }},
		{"bad size", func(c *Config) { c.Storage.MaxDownloadSize = "lots" }},
		{"bad ttl", func(c *Config) { c.Cache.RefTTL = "three days" }},
		{"negative ttl", func(c *Config) { c.Cache.RefTTL = "-1h" }},
		{"zero page limit", func(c *Config) { c.Cache.IndexPageLimit = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestHomeDirExpansion(t *testing.T) {
	path := writeConfig(t, `
cache:
  dir: ~/callvault-cache
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "callvault-cache"), cfg.Cache.Dir)
}
