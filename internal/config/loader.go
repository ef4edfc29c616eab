package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "torbit.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TORBIT_PORT")
	setString(&cfg.Server.CORSOrigin, "TORBIT_CORS_ORIGIN")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "TORBIT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TORBIT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TORBIT_LOG_ASYNC")

	setInt64(&cfg.Pricing.InputRate, "TORBIT_PRICE_INPUT_RATE")
	setInt64(&cfg.Pricing.OutputRate, "TORBIT_PRICE_OUTPUT_RATE")
	setInt64(&cfg.Pricing.ToolBasePrice, "TORBIT_PRICE_TOOL_BASE")
	setInt64(&cfg.Pricing.ProviderBasePrice, "TORBIT_PRICE_PROVIDER_BASE")

	setInt64(&cfg.Budget.DefaultLimit, "TORBIT_BUDGET_DEFAULT_LIMIT")
	setBool(&cfg.Penalty.Enabled, "TORBIT_PENALTY_ENABLED")
	setFloat64(&cfg.Penalty.Multiplier, "TORBIT_PENALTY_MULTIPLIER")

	setInt64(&cfg.Breaker.MaxSpend, "TORBIT_BREAKER_MAX_SPEND")
	setUint32(&cfg.Breaker.MaxRetries, "TORBIT_BREAKER_MAX_RETRIES")
	setDuration(&cfg.Breaker.MaxWallTime, "TORBIT_BREAKER_MAX_WALL_TIME")

	setInt(&cfg.History.MaxSummaries, "TORBIT_HISTORY_MAX_SUMMARIES")
	setInt64(&cfg.Cache.MaxSizeMB, "TORBIT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.IdempotencyTTL, "TORBIT_IDEMPOTENCY_TTL")

	setBool(&cfg.Auth.Enabled, "TORBIT_AUTH_ENABLED")
	setBool(&cfg.Otel.Enabled, "TORBIT_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "TORBIT_OTEL_ENDPOINT")
	setBool(&cfg.MCP.Enabled, "TORBIT_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "TORBIT_MCP_ADDR")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Pricing.InputRate < 0 || cfg.Pricing.OutputRate < 0 {
		return errors.New("pricing rates must be >= 0")
	}
	for category, m := range cfg.Pricing.Multipliers {
		if m < 0 {
			return fmt.Errorf("pricing.multipliers[%s] must be >= 0", category)
		}
	}
	if cfg.Budget.DefaultLimit < 1 {
		return errors.New("budget.default_limit must be >= 1")
	}
	if cfg.Penalty.Multiplier < 0 {
		return errors.New("penalty.multiplier must be >= 0")
	}
	if cfg.History.MaxSummaries < 1 {
		return errors.New("history.max_summaries must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.HashedKeys) == 0 {
		return errors.New("auth.hashed_keys is required when auth is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
