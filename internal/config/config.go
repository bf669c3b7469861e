package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/lerobot-preview/internal/envvar"
	"github.com/ekisa-team/lerobot-preview/internal/xfs"
)

// Config holds the main configuration for the tool. Every field is optional;
// an absent config file yields a fully working default setup.
type Config struct {
	Version  string         `json:"version,omitempty"  yaml:"version,omitempty"`
	Cache    CacheConfig    `json:"cache,omitempty"    yaml:"cache,omitempty"`
	Download DownloadConfig `json:"download,omitempty" yaml:"download,omitempty"`
	Viewer   ViewerConfig   `json:"viewer,omitempty"   yaml:"viewer,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"  yaml:"logging,omitempty"`
}

// CacheConfig holds configuration for the local episode cache.
type CacheConfig struct {
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
}

// DownloadConfig tunes blob downloads.
type DownloadConfig struct {
	MaxRetries int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelay Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	Timeout    Duration `json:"timeout,omitempty"     yaml:"timeout,omitempty"`
	Workers    int      `json:"workers,omitempty"     yaml:"workers,omitempty"`
}

// ViewerConfig holds configuration for the Rerun Viewer integration.
type ViewerConfig struct {
	Binary string `json:"binary,omitempty" yaml:"binary,omitempty"`
}

// LoggingConfig holds configuration for file logging.
type LoggingConfig struct {
	ToFile *bool  `json:"to_file,omitempty" yaml:"to_file,omitempty"`
	File   string `json:"file,omitempty"    yaml:"file,omitempty"`
}

// Download tuning defaults, matching what the tool ships with when no config
// file is present.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultTimeout    = 5 * time.Minute
	DefaultWorkers    = 4
)

// Normalize fills in defaults and resolves environment overrides. The cache
// root precedence is: LEROBOT_PREVIEW_CACHE_DIR, then the config value, then
// the OS cache directory.
func (c *Config) Normalize() {
	if env := os.Getenv(envvar.CacheDir); env != "" {
		c.Cache.Root = env
	}
	if c.Cache.Root == "" {
		c.Cache.Root = DefaultCacheRoot()
	}
	c.Cache.Root = xfs.ExpandTilde(c.Cache.Root)

	if c.Download.MaxRetries <= 0 {
		c.Download.MaxRetries = DefaultMaxRetries
	}
	if c.Download.RetryDelay <= 0 {
		c.Download.RetryDelay = Duration(DefaultRetryDelay)
	}
	if c.Download.Timeout <= 0 {
		c.Download.Timeout = Duration(DefaultTimeout)
	}
	if c.Download.Workers <= 0 {
		c.Download.Workers = DefaultWorkers
	}

	if env := os.Getenv(envvar.RerunBin); env != "" {
		c.Viewer.Binary = env
	}
}

// LogToFile reports whether log output should be mirrored to a file.
// Defaults to true when unset.
func (c *Config) LogToFile() bool {
	if c.Logging.ToFile == nil {
		return true
	}

	return *c.Logging.ToFile
}

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
