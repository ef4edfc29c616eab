// Package config provides hierarchical configuration loading for Torbit.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Torbit metering service.
type Config struct {
	Server  Server  `yaml:"server"`
	NATS    NATS    `yaml:"nats"`
	Logging Logging `yaml:"logging"`
	Pricing Pricing `yaml:"pricing"`
	Budget  Budget  `yaml:"budget"`
	Penalty Penalty `yaml:"penalty"`
	Breaker Breaker `yaml:"breaker"`
	History History `yaml:"history"`
	Cache   Cache   `yaml:"cache"`
	Auth    Auth    `yaml:"auth"`
	Otel    Otel    `yaml:"otel"`
	MCP     MCP     `yaml:"mcp"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// NATS holds the audit-sink JetStream configuration.
// An empty URL disables the NATS sink.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Pricing holds the per-unit cost tables loaded into the immutable
// pricing table at startup. Rates are integer currency units (cents);
// token rates are per 1000 tokens.
type Pricing struct {
	InputRate         int64              `yaml:"input_rate"`
	OutputRate        int64              `yaml:"output_rate"`
	ToolPrices        map[string]int64   `yaml:"tool_prices"`
	ToolBasePrice     int64              `yaml:"tool_base_price"`
	ProviderPrices    map[string]int64   `yaml:"provider_prices"`
	ProviderBasePrice int64              `yaml:"provider_base_price"`
	Multipliers       map[string]float64 `yaml:"multipliers"`
}

// Budget holds execution budget configuration.
type Budget struct {
	DefaultLimit int64 `yaml:"default_limit"`
}

// Penalty holds penalty charge configuration.
type Penalty struct {
	Enabled    bool    `yaml:"enabled"`
	Multiplier float64 `yaml:"multiplier"`
}

// Breaker holds runaway-loop circuit breaker ceilings.
type Breaker struct {
	MaxSpend    int64         `yaml:"max_spend"`
	MaxRetries  uint32        `yaml:"max_retries"`
	MaxWallTime time.Duration `yaml:"max_wall_time"`
}

// History holds the closed-summary retention configuration.
type History struct {
	MaxSummaries int `yaml:"max_summaries"`
}

// Cache holds in-process cache configuration (idempotency replay).
type Cache struct {
	MaxSizeMB      int64         `yaml:"max_size_mb"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

// Auth holds API-key authentication configuration. Keys are stored as
// bcrypt hashes; generate them with `torbit admin hash-key`.
type Auth struct {
	Enabled    bool     `yaml:"enabled"`
	HashedKeys []string `yaml:"hashed_keys"`
}

// Otel holds OpenTelemetry export configuration.
type Otel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// MCP holds the Model Context Protocol server configuration.
type MCP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8090",
			CORSOrigin: "http://localhost:3000",
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Logging: Logging{
			Level:   "info",
			Service: "torbit-meter",
		},
		Pricing: Pricing{
			InputRate:         30,
			OutputRate:        60,
			ToolBasePrice:     5,
			ProviderBasePrice: 3,
		},
		Budget: Budget{
			DefaultLimit: 10000,
		},
		Penalty: Penalty{
			Enabled:    true,
			Multiplier: 0.1,
		},
		Breaker: Breaker{
			MaxSpend:    10000,
			MaxRetries:  3,
			MaxWallTime: 5 * time.Minute,
		},
		History: History{
			MaxSummaries: 256,
		},
		Cache: Cache{
			MaxSizeMB:      32,
			IdempotencyTTL: 10 * time.Minute,
		},
		Otel: Otel{
			Endpoint: "localhost:4317",
		},
		MCP: MCP{
			Addr: ":8091",
		},
	}
}
