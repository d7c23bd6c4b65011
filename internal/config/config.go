package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
)

// Config holds all configuration values
type Config struct {
	Port       string `mapstructure:"PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	PathPrefix string `mapstructure:"PATH_PREFIX"`

	StorageType   string `mapstructure:"STORAGE_TYPE"`
	BookingsTable string `mapstructure:"DYNAMODB_BOOKINGS_TABLE"`
	AWSRegion     string `mapstructure:"AWS_REGION"`
	KinesisStream string `mapstructure:"KINESIS_BOOKING_EVENTS_STREAM"`

	GeocoderURL        string        `mapstructure:"GEOCODER_URL"`
	RouterURL          string        `mapstructure:"ROUTER_URL"`
	ResolverRatePerSec float64       `mapstructure:"RESOLVER_RATE_PER_SEC"`
	ResolverTimeout    time.Duration `mapstructure:"RESOLVER_TIMEOUT"`

	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

// Load reads configuration from an optional dotenv file and the environment.
// Environment variables take precedence over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8082")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PATH_PREFIX", "")
	v.SetDefault("STORAGE_TYPE", StorageMemory)
	v.SetDefault("DYNAMODB_BOOKINGS_TABLE", "bookings")
	v.SetDefault("AWS_REGION", "us-west-2")
	v.SetDefault("KINESIS_BOOKING_EVENTS_STREAM", "")
	v.SetDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("ROUTER_URL", "https://router.project-osrm.org")
	v.SetDefault("RESOLVER_RATE_PER_SEC", 1.0)
	v.SetDefault("RESOLVER_TIMEOUT", "10s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("SWEEP_INTERVAL", "1m")

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		slog.Debug("No config file found, using environment variables only", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that have no safe fallback
func (c Config) Validate() error {
	switch c.StorageType {
	case StorageMemory, StorageDynamoDB:
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.StorageType)
	}
	if c.StorageType == StorageDynamoDB && c.BookingsTable == "" {
		return errors.New("DYNAMODB_BOOKINGS_TABLE is required for dynamodb storage")
	}
	if c.ResolverTimeout <= 0 {
		return errors.New("RESOLVER_TIMEOUT must be positive")
	}
	if c.ResolverRatePerSec < 0 {
		return errors.New("RESOLVER_RATE_PER_SEC must not be negative")
	}
	if c.SessionTTL <= 0 || c.SweepInterval <= 0 {
		return errors.New("SESSION_TTL and SWEEP_INTERVAL must be positive")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
