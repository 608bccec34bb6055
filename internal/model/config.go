package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// StorageConfig locates the on-disk store.
type StorageConfig struct {
	// Dir is the application-support directory holding the store files.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// File is the primary store file name inside Dir. The engine keeps
	// its -wal and -shm side files next to it.
	File string `mapstructure:"file" yaml:"file"`
}

// Path returns the full path of the primary store file.
func (c StorageConfig) Path() string {
	return filepath.Join(c.Dir, c.File)
}

// RetentionConfig bounds storage growth.
type RetentionConfig struct {
	KeepNotifications int    `mapstructure:"keep_notifications" yaml:"keep_notifications"`
	SessionMaxAgeDays int    `mapstructure:"session_max_age_days" yaml:"session_max_age_days"`
	Schedule          string `mapstructure:"schedule" yaml:"schedule"`
}

// AggregationConfig tunes the statistics views.
type AggregationConfig struct {
	ProjectSessionLimit int `mapstructure:"project_session_limit" yaml:"project_session_limit"`
}

// LogConfig controls the structured logger and its rotating file sink.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Retention   RetentionConfig   `mapstructure:"retention" yaml:"retention"`
	Aggregation AggregationConfig `mapstructure:"aggregation" yaml:"aggregation"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

const appDirName = "NotchNoti"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notchstore/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "notchstore", "config.yaml")
}

// DefaultStorageDir returns the application-support directory for the
// store (~/Library/Application Support/NotchNoti on macOS).
func DefaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", appDirName)
	}
	return filepath.Join(dir, appDirName)
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Storage: StorageConfig{
			Dir:  DefaultStorageDir(),
			File: "notchstore.sqlite",
		},
		Retention: RetentionConfig{
			KeepNotifications: 5000,
			SessionMaxAgeDays: 30,
			Schedule:          "@every 1h",
		},
		Aggregation: AggregationConfig{
			ProjectSessionLimit: 100,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults overlaid with NOTCHSTORE_* environment
// variables are returned.
func LoadConfig(path string) (*AppConfig, error) {
	defaults := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NOTCHSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("storage.dir", defaults.Storage.Dir)
	v.SetDefault("storage.file", defaults.Storage.File)
	v.SetDefault("retention.keep_notifications", defaults.Retention.KeepNotifications)
	v.SetDefault("retention.session_max_age_days", defaults.Retention.SessionMaxAgeDays)
	v.SetDefault("retention.schedule", defaults.Retention.Schedule)
	v.SetDefault("aggregation.project_session_limit", defaults.Aggregation.ProjectSessionLimit)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)
	v.SetDefault("log.max_age_days", defaults.Log.MaxAgeDays)

	// A missing file is not an error; defaults and environment still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Retention.KeepNotifications < 0 {
		return nil, fmt.Errorf("config %s: retention.keep_notifications must not be negative", path)
	}
	if cfg.Retention.SessionMaxAgeDays < 0 {
		return nil, fmt.Errorf("config %s: retention.session_max_age_days must not be negative", path)
	}
	if cfg.Aggregation.ProjectSessionLimit <= 0 {
		cfg.Aggregation.ProjectSessionLimit = defaults.Aggregation.ProjectSessionLimit
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

	v.Set("storage", cfg.Storage)
	v.Set("retention", cfg.Retention)
	v.Set("aggregation", cfg.Aggregation)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
