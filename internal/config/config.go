package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"mhcal/internal/alarm"
	appLog "mhcal/internal/log"
	"mhcal/internal/store"
)

const appName = "mhcal"

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "Local"
)

// SubscriptionConfig is a remote calendar imported by `mhcal import`
// when no file is named.
type SubscriptionConfig struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	URL  string `yaml:"url" json:"url" validate:"required,url"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password" validate:"required"`
}

// AlarmConfig controls the reminder scheduler of `mhcal serve`.
type AlarmConfig struct {
	// Cron is a five-field schedule for checking due alarms.
	Cron string `yaml:"cron" json:"cron"`
	// LookAheadDays bounds how far ahead alarms are collected.
	LookAheadDays int `yaml:"look_ahead_days" json:"look_ahead_days" validate:"min=1,max=3660"`
	// Category is a category expression; only matching entries alarm.
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// Timezone is the IANA zone occurrences are placed in, or "Local".
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`

	// DataDir holds the record files and the change log.
	DataDir string `yaml:"data_dir" json:"data_dir" validate:"required"`

	// CacheDir holds downloaded subscription bodies.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" validate:"required"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// HolidayCategory marks entries that make a day a holiday.
	HolidayCategory string `yaml:"holiday_category" json:"holiday_category"`

	Alarm AlarmConfig `yaml:"alarm" json:"alarm"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions" validate:"dive"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultPath is $XDG_CONFIG_HOME/mhcal/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

func defaultDataDir() string  { return filepath.Join(xdg.DataHome, appName) }
func defaultCacheDir() string { return filepath.Join(xdg.CacheHome, appName) }

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially filled files still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HolidayCategory == "" {
		c.HolidayCategory = store.DefaultHolidayCategory
	}
	if c.Alarm.Cron == "" {
		c.Alarm.Cron = alarm.DefaultSpec
	}
	if c.Alarm.LookAheadDays <= 0 {
		c.Alarm.LookAheadDays = alarm.DefaultLookAheadDays
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
}

var validate = validator.New()

// Validate checks struct tags, the timezone and the alarm schedule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}
	if _, err := cron.ParseStandard(c.Alarm.Cron); err != nil {
		return fmt.Errorf("config: alarm.cron: %w", err)
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	seen := make(map[string]bool, len(c.Subscriptions))
	for _, s := range c.Subscriptions {
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate subscription id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == defaultTimezone {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load reads the YAML file at path. A missing file is created with the
// defaults (0600) on first run.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".mhcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
