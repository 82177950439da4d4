package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvGlideBaseURL = "GLIDE_BASE_URL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file. The
// DB_CONNECTION environment variable takes precedence.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// Defaults applied when the config file omits or invalidates sync settings.
const (
	defaultGlideBaseURL = "https://api.glideapp.io/api/function/queryTables"
	defaultGlideTimeout = 30 * time.Second
	defaultFetchLimit   = 1000
	defaultBatchSize    = 100
)

// GlideConfig holds Glide API client settings.
type GlideConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SyncConfig holds sync execution tuning.
type SyncConfig struct {
	FetchLimit int `yaml:"fetch-limit"`
	BatchSize  int `yaml:"batch-size"`
}

// LoadGlideConfig loads Glide API settings from the YAML config file, applying
// defaults for anything missing. A missing file is not an error.
func LoadGlideConfig(configPath string) (GlideConfig, error) {
	// fileConfig maps the YAML fields needed for Glide settings. The timeout
	// is a duration string such as "30s".
	type fileConfig struct {
		Glide struct {
			BaseURL string `yaml:"base-url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"glide"`
	}

	result := GlideConfig{BaseURL: defaultGlideBaseURL, Timeout: defaultGlideTimeout}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if strings.TrimSpace(cfg.Glide.BaseURL) != "" {
				result.BaseURL = strings.TrimSpace(cfg.Glide.BaseURL)
			}
			if d, errParse := time.ParseDuration(strings.TrimSpace(cfg.Glide.Timeout)); errParse == nil && d > 0 {
				result.Timeout = d
			}
		}
	}

	if base := strings.TrimSpace(os.Getenv(EnvGlideBaseURL)); base != "" {
		result.BaseURL = base
	}
	return result, nil
}

// LoadSyncConfig loads sync tuning from the YAML config file, applying
// defaults for anything missing or non-positive.
func LoadSyncConfig(configPath string) (SyncConfig, error) {
	// fileConfig maps the YAML fields needed for sync tuning.
	type fileConfig struct {
		Sync SyncConfig `yaml:"sync"`
	}

	result := SyncConfig{FetchLimit: defaultFetchLimit, BatchSize: defaultBatchSize}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if cfg.Sync.FetchLimit > 0 {
				result.FetchLimit = cfg.Sync.FetchLimit
			}
			if cfg.Sync.BatchSize > 0 {
				result.BatchSize = cfg.Sync.BatchSize
			}
		}
	}
	return result, nil
}
