package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qw4990/sql_advisor/advisor"
	"github.com/qw4990/sql_advisor/cache"
	"github.com/qw4990/sql_advisor/database"
)

// Environment variables overriding the config file.
const (
	EnvDSN    = "ADVISOR_DSN"
	EnvDriver = "ADVISOR_DRIVER"
)

// Config is the content of the advisor config file.
type Config struct {
	Driver   string        `yaml:"driver"`
	DSN      string        `yaml:"dsn"`
	LogLevel string        `yaml:"log-level"`
	Advisor  AdvisorConfig `yaml:"advisor"`
	Connect  ConnectConfig `yaml:"connect"`
	Cache    CacheConfig   `yaml:"cache"`
	History  HistoryConfig `yaml:"history"`
}

// AdvisorConfig mirrors advisor.Parameter.
type AdvisorConfig struct {
	MaxSuggestions     int           `yaml:"max-suggestions"`
	MinImprovement     float64       `yaml:"min-improvement"`
	Runs               int           `yaml:"runs"`
	Validate           bool          `yaml:"validate"`
	FastQueryThreshold time.Duration `yaml:"fast-query-threshold"`
	ClearCache         bool          `yaml:"clear-cache"`
	AllowComposite     bool          `yaml:"allow-composite"`
	ValidateTables     bool          `yaml:"validate-tables"`
}

type ConnectConfig struct {
	MaxRetries     int           `yaml:"max-retries"`
	InitialBackoff time.Duration `yaml:"initial-backoff"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int64         `yaml:"max-entries"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty keeps the history in memory
}

// Default returns the default config.
func Default() Config {
	p := advisor.DefaultParameter()
	retry := database.DefaultRetryPolicy()
	c := cache.DefaultOptions()
	return Config{
		Driver:   "mysql",
		LogLevel: "info",
		Advisor: AdvisorConfig{
			MaxSuggestions:     p.MaxSuggestions,
			MinImprovement:     p.MinImprovement,
			Runs:               p.Runs,
			Validate:           p.Validate,
			FastQueryThreshold: p.FastQueryThreshold,
			ClearCache:         p.ClearCache,
			AllowComposite:     p.AllowComposite,
			ValidateTables:     p.ValidateTables,
		},
		Connect: ConnectConfig{
			MaxRetries:     retry.MaxRetries,
			InitialBackoff: retry.InitialBackoff,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        c.TTL,
			MaxEntries: c.MaxEntries,
		},
	}
}

// Load reads the config file on top of the defaults and applies the
// environment overrides. An empty path only applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %v: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDSN); v != "" {
		c.DSN = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		c.Driver = v
	}
}

// Save writes the config as YAML.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Parameter returns the advisor parameters of the config.
func (c Config) Parameter() advisor.Parameter {
	return advisor.Parameter{
		MaxSuggestions:     c.Advisor.MaxSuggestions,
		MinImprovement:     c.Advisor.MinImprovement,
		Runs:               c.Advisor.Runs,
		Validate:           c.Advisor.Validate,
		FastQueryThreshold: c.Advisor.FastQueryThreshold,
		ClearCache:         c.Advisor.ClearCache,
		AllowComposite:     c.Advisor.AllowComposite,
		ValidateTables:     c.Advisor.ValidateTables,
	}
}

// RetryPolicy returns the connection retry policy of the config.
func (c Config) RetryPolicy() database.RetryPolicy {
	return database.RetryPolicy{MaxRetries: c.Connect.MaxRetries, InitialBackoff: c.Connect.InitialBackoff}
}

// CacheOptions returns the result cache options of the config.
func (c Config) CacheOptions() cache.Options {
	return cache.Options{MaxEntries: c.Cache.MaxEntries, TTL: c.Cache.TTL}
}
