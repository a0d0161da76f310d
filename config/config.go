// CLAUDE:SUMMARY Reachout configuration: optional YAML file with defaults, then environment overrides for credentials and log level.
// Package config loads the reachout configuration from an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/reachout/browser"
	"github.com/hazyhaar/reachout/classifier"
	"github.com/hazyhaar/reachout/exclusion"
)

// Config is the top-level reachout configuration.
type Config struct {
	LogLevel   string            `yaml:"log_level"`
	Browser    browser.Config    `yaml:"browser"`
	Timeouts   browser.Timeouts  `yaml:"timeouts"`
	Selectors  browser.Selectors `yaml:"selectors"`
	Exclusion  exclusion.Config  `yaml:"exclusion"`
	Collector  CollectorConfig   `yaml:"collector"`
	Navigator  NavigatorConfig   `yaml:"navigator"`
	Outreach   OutreachConfig    `yaml:"outreach"`
	Classifier classifier.Config `yaml:"classifier"`
	Journal    JournalConfig     `yaml:"journal"`
	Status     StatusConfig      `yaml:"status"`

	// Credentials come from the environment only.
	Email    string `yaml:"-"`
	Password string `yaml:"-"`
}

// CollectorConfig controls candidate extraction.
type CollectorConfig struct {
	Selector      string `yaml:"selector"`
	Attr          string `yaml:"attr"`
	BaseURL       string `yaml:"base_url"`
	MaxExpansions int    `yaml:"max_expansions"`
}

// NavigatorConfig controls the visit retry policy.
type NavigatorConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// OutreachConfig controls the run loop.
type OutreachConfig struct {
	MaxPerRun int           `yaml:"max_per_run"`
	Pause     time.Duration `yaml:"pause"`
}

// JournalConfig locates the run journal. Empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig controls the status endpoint. Empty addr disables it.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file. When optional is true a missing
// file yields the defaults.
func LoadFile(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads the file named by REACHOUT_CONFIG (default reachout.yaml,
// optional unless set explicitly) and applies environment overrides.
func Load() (*Config, error) {
	path, explicit := os.LookupEnv("REACHOUT_CONFIG")
	if !explicit || path == "" {
		path = "reachout.yaml"
	}
	cfg, err := LoadFile(path, !explicit)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	c.Email = env("LINKEDIN_EMAIL", c.Email)
	c.Password = env("LINKEDIN_PASSWORD", c.Password)
	c.Classifier.Token = env("OPENAI_API", c.Classifier.Token)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
}

// Validate reports missing values a run cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Email == "" {
		missing = append(missing, "LINKEDIN_EMAIL")
	}
	if c.Password == "" {
		missing = append(missing, "LINKEDIN_PASSWORD")
	}
	if c.Classifier.Token == "" {
		missing = append(missing, "OPENAI_API")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing environment: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Level parses LogLevel. Unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Selectors = c.Selectors.Merge()
	if c.Exclusion.Backend == "" {
		c.Exclusion.Backend = exclusion.BackendFile
	}
	if c.Exclusion.Path == "" {
		c.Exclusion.Path = exclusion.DefaultPath(c.Exclusion.Backend)
	}
	if c.Collector.Selector == "" {
		c.Collector.Selector = "li.mn-connection-card a.mn-connection-card__link"
	}
	if c.Collector.Attr == "" {
		c.Collector.Attr = "href"
	}
	if c.Collector.BaseURL == "" {
		c.Collector.BaseURL = "https://www.linkedin.com"
	}
	if c.Collector.MaxExpansions <= 0 {
		c.Collector.MaxExpansions = 500
	}
	if c.Navigator.MaxAttempts <= 0 {
		c.Navigator.MaxAttempts = 5
	}
	if c.Navigator.BaseDelay <= 0 {
		c.Navigator.BaseDelay = 2 * time.Second
	}
	if c.Outreach.MaxPerRun <= 0 {
		c.Outreach.MaxPerRun = 50
	}
	if c.Classifier.Endpoint == "" {
		c.Classifier.Endpoint = "https://api.openai.com"
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "gpt-4"
	}
	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = 30 * time.Second
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
