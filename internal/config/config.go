// Package config builds the process configuration from an optional .env file
// and GEOCASS_* environment variables. The result is constructed once in main
// and passed to every component that needs it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "GEOCASS_"

// KeyLookupPrefixLen is the number of leading token characters stored for
// candidate lookup. The service prefix must be shorter so lookup prefixes
// carry random material.
const KeyLookupPrefixLen = 8

type Config struct {
	AppName    string
	AppVersion string
	Debug      bool
	LogLevel   slog.Level

	Host string
	Port string

	DatabaseURL string

	APIKeyPrefix string
	LoginKeyTTL  time.Duration

	PublicURL string

	MaxHomepageSizeKB int
	MaxSyncPerMinute  int
	MaxSyncPerDay     int

	RedisURL string

	CORSAllowedOrigins []string
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		AppName:           getEnv("APP_NAME", "GeoCass"),
		AppVersion:        getEnv("APP_VERSION", "0.1.0"),
		Debug:             getEnvAsBool("DEBUG", false),
		Host:              getEnv("HOST", "0.0.0.0"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", "sqlite:///./data/geocass.db"),
		APIKeyPrefix:      getEnv("API_KEY_PREFIX", "gc_"),
		PublicURL:         strings.TrimRight(getEnv("PUBLIC_URL", "https://geocass.hearthweave.org"), "/"),
		MaxHomepageSizeKB: getEnvAsInt("MAX_HOMEPAGE_SIZE_KB", 1024),
		MaxSyncPerMinute:  getEnvAsInt("MAX_SYNC_PER_MINUTE", 5),
		MaxSyncPerDay:     getEnvAsInt("MAX_SYNC_PER_DAY", 100),
		RedisURL:          getEnv("REDIS_URL", ""),
	}

	ttl, err := time.ParseDuration(getEnv("LOGIN_KEY_TTL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("parse %sLOGIN_KEY_TTL: %w", EnvPrefix, err)
	}
	cfg.LoginKeyTTL = ttl

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("parse %sLOG_LEVEL: %w", EnvPrefix, err)
	}

	for _, o := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if len(c.APIKeyPrefix) >= KeyLookupPrefixLen {
		errs = append(errs, fmt.Errorf("api key prefix %q must be shorter than %d characters", c.APIKeyPrefix, KeyLookupPrefixLen))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.MaxHomepageSizeKB <= 0 {
		errs = append(errs, errors.New("max homepage size must be positive"))
	}
	if c.MaxSyncPerMinute < 0 || c.MaxSyncPerDay < 0 {
		errs = append(errs, errors.New("sync limits must not be negative"))
	}
	if c.LoginKeyTTL < 0 {
		errs = append(errs, errors.New("login key ttl must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(EnvPrefix + key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
