package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// APIConfig holds settings for the marketplace notification API.
type APIConfig struct {
	// BaseURL is the root URL of the marketplace backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec is the per-request HTTP timeout in seconds.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// FetchDebounceMs is the minimum gap between remote feed fetch
	// attempts in milliseconds.
	FetchDebounceMs int `mapstructure:"fetch_debounce_ms" yaml:"fetch_debounce_ms"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig holds logging settings. The TUI owns stdout, so logs go
// to a file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Path  string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	DBPath  string        `mapstructure:"db_path" yaml:"db_path"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// FetchDebounce returns the debounce interval as a duration.
func (c *AppConfig) FetchDebounce() time.Duration {
	return time.Duration(c.API.FetchDebounceMs) * time.Millisecond
}

// RequestTimeout returns the HTTP timeout as a duration.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/pawnest/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "pawnest", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dataDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "pawnest")
	}

	return &AppConfig{
		API: APIConfig{
			TimeoutSec:      15,
			FetchDebounceMs: 3000,
		},
		DBPath: filepath.Join(dataDir, "companion.db"),
		Display: DisplayConfig{
			Theme: "default",
		},
		Log: LogConfig{
			Level: "info",
			Path:  filepath.Join(dataDir, "companion.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := defaultAppConfig()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.timeout_sec", defaults.API.TimeoutSec)
	v.SetDefault("api.fetch_debounce_ms", defaults.API.FetchDebounceMs)
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("display.theme", defaults.Display.Theme)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.path", defaults.Log.Path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.API.FetchDebounceMs <= 0 {
		cfg.API.FetchDebounceMs = defaults.API.FetchDebounceMs
	}
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = defaults.API.TimeoutSec
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("db_path", cfg.DBPath)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
