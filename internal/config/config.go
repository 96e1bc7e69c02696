package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "3000"
	defaultPublicDir      = "public"
	defaultDownloadPath   = "/download"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultMaxUploadBytes = 100 << 20

	// StorageTypeLocal selects the local filesystem package storage.
	StorageTypeLocal = "local"
)

// Environment selects the error handling behaviour for the process lifetime.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	Env                  Environment   `yaml:"env" env:"APP_ENV"`
	Port                 string        `yaml:"port" env:"PORT"`
	PublicDir            string        `yaml:"publicDir" env:"PUBLIC_DIR"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdownGracePeriod"`
	ReadHeaderTimeout    time.Duration `yaml:"readHeaderTimeout"`
	WriteTimeout         time.Duration `yaml:"writeTimeout"`
	IdleTimeout          time.Duration `yaml:"idleTimeout"`
	EnableRequestLogging bool          `yaml:"enableRequestLogging" env:"ENABLE_REQUEST_LOGGING"`
	MaxUploadBytes       int64         `yaml:"maxUploadBytes" env:"MAX_UPLOAD_BYTES"`

	Common    CommonSettings    `yaml:"common"`
	Local     LocalSettings     `yaml:"local"`
	JWT       JWTSettings       `yaml:"jwt"`
	Log       LogSettings       `yaml:"log"`
	RateLimit RateLimitSettings `yaml:"rateLimit"`
}

// CommonSettings holds settings shared by every storage backend.
type CommonSettings struct {
	StorageType string `yaml:"storageType" env:"STORAGE_TYPE"`
}

// LocalSettings configures the local filesystem storage backend.
type LocalSettings struct {
	StorageDir  string `yaml:"storageDir" env:"STORAGE_DIR"`
	Public      string `yaml:"public" env:"LOCAL_PUBLIC"`
	DownloadURL string `yaml:"downloadUrl" env:"DOWNLOAD_URL"`
}

// JWTSettings configures login token signing.
type JWTSettings struct {
	TokenSecret string        `yaml:"tokenSecret" env:"TOKEN_SECRET"`
	TokenTTL    time.Duration `yaml:"tokenTTL" env:"TOKEN_TTL"`
}

// LogSettings configures the structured logger.
type LogSettings struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"LOG_MAX_AGE_DAYS"`
}

// RateLimitSettings configures the request token bucket. Zero disables it.
type RateLimitSettings struct {
	RPS   float64 `yaml:"rps" env:"RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	Env            *string
	StorageType    *string
	StorageDir     *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// LocalStorage reports whether the local filesystem backend is selected.
func (c Config) LocalStorage() bool {
	return c.Common.StorageType == StorageTypeLocal
}

// DownloadPath returns the URL prefix the local storage directory is served under.
func (c Config) DownloadPath() string {
	if c.Local.Public == "" {
		return defaultDownloadPath
	}
	return c.Local.Public
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := Default()

	if overrides != nil && overrides.ConfigFile != "" {
		if err := loadFromFile(overrides.ConfigFile, &cfg); err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load environment config: %w", err)
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	cfg.Env = Environment(strings.ToLower(strings.TrimSpace(string(cfg.Env))))

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Env:                  Production,
		Port:                 defaultPort,
		PublicDir:            defaultPublicDir,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         60 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		MaxUploadBytes:       defaultMaxUploadBytes,
		Common: CommonSettings{
			StorageType: StorageTypeLocal,
		},
		Local: LocalSettings{
			Public: defaultDownloadPath,
		},
		JWT: JWTSettings{
			TokenTTL: 30 * 24 * time.Hour,
		},
		Log: LogSettings{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		RateLimit: RateLimitSettings{
			RPS:   defaultRateLimitRPS,
			Burst: defaultRateLimitBurst,
		},
	}
}

// loadFromFile decodes a YAML file on top of cfg. Keys absent from the file
// keep their current values.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.Env != nil && *overrides.Env != "" {
		cfg.Env = Environment(*overrides.Env)
	}

	if overrides.StorageType != nil && *overrides.StorageType != "" {
		cfg.Common.StorageType = *overrides.StorageType
	}

	if overrides.StorageDir != nil && *overrides.StorageDir != "" {
		cfg.Local.StorageDir = *overrides.StorageDir
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimit.RPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimit.Burst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Env != Development && cfg.Env != Production {
		return fmt.Errorf("env must be %q or %q, got %q", Development, Production, cfg.Env)
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("port cannot be empty")
	}
	if strings.TrimSpace(cfg.Common.StorageType) == "" {
		return errors.New("common.storageType cannot be empty")
	}
	if cfg.Local.Public != "" && (!strings.HasPrefix(cfg.Local.Public, "/") || strings.Trim(cfg.Local.Public, "/") == "") {
		return fmt.Errorf("local.public must be a path below '/', got %q", cfg.Local.Public)
	}
	if cfg.RateLimit.RPS < 0 {
		return errors.New("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimit.Burst < 0 {
		return errors.New("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("maxUploadBytes must be positive")
	}
	return nil
}
