// Package config loads feedcore settings from YAML and the environment.
package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type RefreshConfig struct {
	Workers   int    `yaml:"workers"`
	Interval  string `yaml:"interval"`
	PerDomain int    `yaml:"per_domain"`
	Timeout   string `yaml:"timeout"`
}

type ScriptsConfig struct {
	Timeout string `yaml:"timeout"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Retention string `yaml:"retention"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Scripts  ScriptsConfig  `yaml:"scripts"`
	Log      LogConfig      `yaml:"log"`
}

// DatabasePath returns the configured path or the XDG data location.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(xdg.DataHome, "feedcore", "feedcore.db")
}

// RefreshInterval returns the auto-refresh period. Zero disables it.
func (c *Config) RefreshInterval() time.Duration {
	d, _ := parseDuration(c.Refresh.Interval)
	return d
}

func (c *Config) FetchTimeout() time.Duration {
	d, err := parseDuration(c.Refresh.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c *Config) ScriptTimeout() time.Duration {
	d, _ := parseDuration(c.Scripts.Timeout)
	return d
}

// LogRetention returns how long persisted log entries are kept.
func (c *Config) LogRetention() time.Duration {
	d, err := parseDuration(c.Log.Retention)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "feedcore", "config.yaml")
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config file at path (or the default location), layering it
// over the embedded defaults and then applying FEEDCORE_* environment
// overrides. A missing file is created from the defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Non-fatal: the embedded defaults still apply
		_ = writeDefaults(path)
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("FEEDCORE_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FEEDCORE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FEEDCORE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEEDCORE_WORKERS: %w", err)
		}
		cfg.Refresh.Workers = n
	}
	if v := os.Getenv("FEEDCORE_REFRESH_INTERVAL"); v != "" {
		cfg.Refresh.Interval = v
	}
	if v := os.Getenv("FEEDCORE_SCRIPT_TIMEOUT"); v != "" {
		cfg.Scripts.Timeout = v
	}
	if v := os.Getenv("FEEDCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Refresh.Workers < 1 {
		return fmt.Errorf("refresh.workers must be at least 1, got %d", cfg.Refresh.Workers)
	}
	if cfg.Refresh.PerDomain < 1 {
		return fmt.Errorf("refresh.per_domain must be at least 1, got %d", cfg.Refresh.PerDomain)
	}
	if d, err := parseDuration(cfg.Refresh.Interval); err != nil {
		return fmt.Errorf("refresh.interval: %w", err)
	} else if d < 0 {
		return fmt.Errorf("refresh.interval must not be negative")
	}
	if d, err := parseDuration(cfg.Scripts.Timeout); err != nil {
		return fmt.Errorf("scripts.timeout: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("scripts.timeout must be positive")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

// parseDuration accepts Go durations plus an "Nd" day suffix. An empty
// string or "0" is zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
