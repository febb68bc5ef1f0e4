package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/congo-pay/bankex/internal/ledger"
)

const (
	defaultLogLevel         = "info"
	defaultReportFormat     = FormatCSV
	defaultMaxDecimalPlaces = 4
	defaultRedisKeyPrefix   = "bankex:"
	maxDecimalPlacesEnvVar  = "MAX_DECIMAL_PLACES"
	chargebackPolicyEnvVar  = "CHARGEBACK_POLICY"
)

// Report formats accepted by REPORT_FORMAT and --format.
const (
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatRedis    = "redis"
	FormatPostgres = "postgres"
)

// Config captures runtime configuration loaded from the environment and an optional .env file.
type Config struct {
	LogLevel         string
	ReportFormat     string
	ChargebackPolicy ledger.ChargebackPolicy
	MaxDecimalPlaces int32
	DatabaseURL      string
	RedisURL         string
	RedisKeyPrefix   string
}

// Load reads configuration values from the environment and populates a Config instance.
// When envFile is empty a .env in the working directory is loaded if present.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := Config{
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		ReportFormat:     strings.ToLower(getEnv("REPORT_FORMAT", defaultReportFormat)),
		MaxDecimalPlaces: defaultMaxDecimalPlaces,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
	}

	policy, err := ledger.ParseChargebackPolicy(os.Getenv(chargebackPolicyEnvVar))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", chargebackPolicyEnvVar, err)
	}
	cfg.ChargebackPolicy = policy

	if v := os.Getenv(maxDecimalPlacesEnvVar); v != "" {
		places, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", maxDecimalPlacesEnvVar, err)
		}
		cfg.MaxDecimalPlaces = int32(places)
	}

	return cfg, nil
}

// Validate checks the settings that only make sense together, such as a sink and its URL.
func (c Config) Validate() error {
	if c.MaxDecimalPlaces < 1 || c.MaxDecimalPlaces > 28 {
		return fmt.Errorf("max decimal places must be between 1 and 28, got %d", c.MaxDecimalPlaces)
	}
	switch c.ReportFormat {
	case FormatCSV, FormatJSON:
	case FormatRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set for the %s report", c.ReportFormat)
		}
	case FormatPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the %s report", c.ReportFormat)
		}
	default:
		return fmt.Errorf("unknown report format %q", c.ReportFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
