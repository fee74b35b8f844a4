package config

import (
	"os"
	"strconv"
	"strings"

	"gospatial/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultDatabaseURL is a SQLite file in the working directory
const DefaultDatabaseURL = "file:kfunction_results.db"

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig `validate:"required"`
	Server   ServerConfig   `validate:"required"`
	Compute  ComputeConfig  `validate:"required"`
	Log      LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string `validate:"required"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required,numeric"`
	GinMode string `validate:"omitempty,oneof=debug release test"`
}

// ComputeConfig holds field fan-out settings
type ComputeConfig struct {
	Workers int `validate:"gte=1,lte=1024"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// Load reads .env (when present) and the environment, then validates
func Load() (*Config, error) {
	return LoadWithEnvFile(".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing file is not
// an error; variables already set in the environment win.
func LoadWithEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to load %s", path)
		}
	}

	config := &Config{
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", DefaultDatabaseURL),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("API_PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
		Compute: ComputeConfig{
			Workers: getEnvIntOrDefault("WORKERS", 4),
		},
		Log: LogConfig{
			Level: strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
