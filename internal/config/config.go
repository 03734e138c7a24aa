// Package config loads and validates runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Feed list modes.
const (
	ModeFlatFile = "flatfile"
	ModeRemote   = "remote"
)

// RemoteConfig holds the remote subscription service settings (mode
// "remote"). Credentials can be supplied via SYNGEN_REMOTE_USERNAME and
// SYNGEN_REMOTE_PASSWORD instead of the config file.
type RemoteConfig struct {
	ListURL  string `toml:"list_url"` // OPML subscription listing endpoint
	ItemURL  string `toml:"item_url"` // item endpoint prefix, subscription id is appended
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Config is the full runtime configuration.
type Config struct {
	VarDir          string       `toml:"var_dir"`  // base directory for cache/state/lastrun
	MailDir         string       `toml:"mail_dir"` // directory holding the mbox files
	FeedFile        string       `toml:"feed_file"`
	FeedMode        string       `toml:"feed_mode"` // "flatfile" or "remote"
	DryRun          bool         `toml:"dry_run"`
	MaxCacheEntries int          `toml:"max_cache_entries"`
	MinCacheEntries int          `toml:"min_cache_entries"`
	FetchTimeout    string       `toml:"fetch_timeout"`
	Concurrency     int          `toml:"concurrency"`
	Remote          RemoteConfig `toml:"remote"`
}

// Load reads the TOML config at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		FeedMode:        ModeFlatFile,
		MaxCacheEntries: 200,
		MinCacheEntries: 75,
		FetchTimeout:    "60s",
		Concurrency:     1,
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if v := strings.TrimSpace(os.Getenv("SYNGEN_REMOTE_USERNAME")); v != "" {
		cfg.Remote.Username = v
	}
	if v := strings.TrimSpace(os.Getenv("SYNGEN_REMOTE_PASSWORD")); v != "" {
		cfg.Remote.Password = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.VarDir == "" {
		return fmt.Errorf("var_dir is required")
	}
	if c.MailDir == "" {
		return fmt.Errorf("mail_dir is required")
	}
	switch c.FeedMode {
	case ModeFlatFile:
		if c.FeedFile == "" {
			return fmt.Errorf("feed_file is required in flatfile mode")
		}
	case ModeRemote:
		if c.Remote.ListURL == "" || c.Remote.ItemURL == "" {
			return fmt.Errorf("remote.list_url and remote.item_url are required in remote mode")
		}
	default:
		return fmt.Errorf("unknown feed_mode %q", c.FeedMode)
	}
	if c.MinCacheEntries >= c.MaxCacheEntries {
		return fmt.Errorf("min_cache_entries (%d) must be below max_cache_entries (%d)",
			c.MinCacheEntries, c.MaxCacheEntries)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if _, err := c.GetFetchTimeout(); err != nil {
		return err
	}
	return nil
}

// GetFetchTimeout parses the fetch timeout duration.
func (c *Config) GetFetchTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch_timeout %q: %w", c.FetchTimeout, err)
	}
	return d, nil
}

// CacheDir is where per-feed duplicate caches live.
func (c *Config) CacheDir() string {
	return filepath.Join(c.VarDir, "cache")
}

// StateDir is where per-feed conditional-fetch state lives.
func (c *Config) StateDir() string {
	return filepath.Join(c.VarDir, "modified")
}

// RunFile marks the completion time of the last successful run.
func (c *Config) RunFile() string {
	return filepath.Join(c.VarDir, "lastrun")
}

// Bootstrap creates the storage directories and the lastrun marker on first
// use. It is a no-op once everything exists, and does nothing in dry-run.
func (c *Config) Bootstrap() error {
	if c.DryRun {
		return nil
	}
	for _, dir := range []string{c.VarDir, c.CacheDir(), c.StateDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(c.RunFile()); os.IsNotExist(err) {
		if err := os.WriteFile(c.RunFile(), nil, 0o600); err != nil {
			return fmt.Errorf("create %s: %w", c.RunFile(), err)
		}
	}
	return nil
}

// TouchRunFile records a completed run.
func (c *Config) TouchRunFile() error {
	if c.DryRun {
		return nil
	}
	now := time.Now()
	return os.Chtimes(c.RunFile(), now, now)
}
