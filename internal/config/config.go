// Package config handles configuration loading and validation for
// callvault.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/callvault/callvault/pkg/bytesize"
)

// StorageConfig holds configuration for the remote store client.
type StorageConfig struct {
	BaseURL    string `yaml:"base_url"`    // API endpoint (override for testing)
	BasePath   string `yaml:"base_path"`   // recordings directory
	OAuthToken string `yaml:"oauth_token"` // preferred credential
	Login      string `yaml:"login"`       // Basic auth fallback
	Password   string `yaml:"password"`
	Timezone   string `yaml:"timezone"` // IANA name for timestamped candidates
	Timeout    string `yaml:"timeout"`  // duration string, e.g. "120s"

	// MaxDownloadSize caps in-memory payloads, e.g. "200MB".
	// Empty means unlimited.
	MaxDownloadSize string `yaml:"max_download_size"`
}

// CacheConfig holds configuration for the path/reference cache.
type CacheConfig struct {
	Dir            string `yaml:"dir"`              // BadgerDB directory; empty disables the cache
	RefTTL         string `yaml:"ref_ttl"`          // expiry for reference entries, e.g. "72h"; empty = no expiry
	IndexPageLimit int    `yaml:"index_page_limit"` // directory page size for reindex walks
}

// Config is the root callvault configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
}

// Default returns a configuration with all defaults applied and
// credentials taken from the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a YAML file. Defaults are applied for
// missing values and STORAGE_OAUTH_TOKEN / STORAGE_LOGIN /
// STORAGE_PASSWORD environment variables override file credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.BasePath == "" {
		c.Storage.BasePath = "/mango_data/"
	}
	if c.Storage.Timezone == "" {
		c.Storage.Timezone = "Europe/Moscow"
	}
	if c.Storage.Timeout == "" {
		c.Storage.Timeout = "120s"
	}
	if c.Cache.IndexPageLimit == 0 {
		c.Cache.IndexPageLimit = 500
	}

	// Environment wins over the file for credentials.
	if v := os.Getenv("STORAGE_OAUTH_TOKEN"); v != "" {
		c.Storage.OAuthToken = v
	}
	if v := os.Getenv("STORAGE_LOGIN"); v != "" {
		c.Storage.Login = v
	}
	if v := os.Getenv("STORAGE_PASSWORD"); v != "" {
		c.Storage.Password = v
	}

	// Expand home directory in cache dir
	if strings.HasPrefix(c.Cache.Dir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			c.Cache.Dir = filepath.Join(homeDir, c.Cache.Dir[2:])
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Storage.Timezone); err != nil {
		return fmt.Errorf("invalid storage.timezone: %w", err)
	}
	if d, err := time.ParseDuration(c.Storage.Timeout); err != nil {
		return fmt.Errorf("invalid storage.timeout: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("storage.timeout must be positive")
	}
	if c.Storage.MaxDownloadSize != "" {
		if _, err := bytesize.Parse(c.Storage.MaxDownloadSize); err != nil {
			return fmt.Errorf("invalid storage.max_download_size: %w", err)
		}
	}
	if c.Cache.RefTTL != "" {
		d, err := time.ParseDuration(c.Cache.RefTTL)
		if err != nil {
			return fmt.Errorf("invalid cache.ref_ttl: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("cache.ref_ttl must not be negative")
		}
	}
	if c.Cache.IndexPageLimit <= 0 {
		return fmt.Errorf("cache.index_page_limit must be positive")
	}
	return nil
}

// Location returns the configured time zone. Call Validate first; an
// unparseable name falls back to UTC here.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Storage.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Timeout returns the HTTP timeout for storage calls.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.Storage.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// MaxDownloadBytes returns the payload size cap in bytes, 0 for
// unlimited.
func (c *Config) MaxDownloadBytes() int64 {
	if c.Storage.MaxDownloadSize == "" {
		return 0
	}
	n, err := bytesize.Parse(c.Storage.MaxDownloadSize)
	if err != nil {
		return 0
	}
	return n
}

// RefTTL returns the reference entry expiry, 0 for none.
func (c *Config) RefTTL() time.Duration {
	if c.Cache.RefTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Cache.RefTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
