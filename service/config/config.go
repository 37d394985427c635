package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Runner selection values for the RUNNER environment variable.
const (
	RunnerInline   = "inline"
	RunnerTemporal = "temporal"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration. Empty disables the attestation archive.
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Ethereum history source
	AlchemyURL    string
	AlchemyAPIKey string

	// ENS subgraph endpoint
	ENSSubgraphURL string

	// Solana history source
	SolanaRPCURL string

	// Categorization address books, comma-separated
	GainContracts  []string
	LossContracts  []string
	YieldContracts []string

	// Job configuration
	JobRetention time.Duration
	Runner       string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration. The archive is optional; leaving
	// DATABASE_URL unset runs the service without persistence.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "veritax-attestations")

	// Ethereum history source
	cfg.AlchemyURL = getEnvOrDefault("ALCHEMY_URL", "https://eth-mainnet.g.alchemy.com/v2")
	cfg.AlchemyAPIKey = os.Getenv("ALCHEMY_API_KEY")
	if cfg.AlchemyAPIKey == "" {
		errs = append(errs, fmt.Errorf("ALCHEMY_API_KEY is required"))
	}

	// ENS subgraph endpoint
	cfg.ENSSubgraphURL = getEnvOrDefault("ENS_SUBGRAPH_URL",
		"https://api.thegraph.com/subgraphs/name/ensdomains/ens")

	// Solana history source
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")

	// Categorization address books
	cfg.GainContracts = splitList(os.Getenv("GAIN_CONTRACTS"))
	cfg.LossContracts = splitList(os.Getenv("LOSS_CONTRACTS"))
	cfg.YieldContracts = splitList(os.Getenv("YIELD_CONTRACTS"))

	// Job configuration. Zero retention keeps terminal jobs forever.
	retention, err := parseDuration("JOB_RETENTION", "0s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.JobRetention = retention
	}
	cfg.Runner = getEnvOrDefault("RUNNER", RunnerInline)
	if cfg.Runner != RunnerInline && cfg.Runner != RunnerTemporal {
		errs = append(errs, fmt.Errorf("RUNNER must be %q or %q, got %q",
			RunnerInline, RunnerTemporal, cfg.Runner))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if c.AlchemyAPIKey == "" {
		errs = append(errs, fmt.Errorf("AlchemyAPIKey is required"))
	}

	if c.Runner != RunnerInline && c.Runner != RunnerTemporal {
		errs = append(errs, fmt.Errorf("Runner must be %q or %q", RunnerInline, RunnerTemporal))
	}

	if c.Runner == RunnerTemporal {
		if c.TemporalHost == "" {
			errs = append(errs, fmt.Errorf("TemporalHost is required"))
		}
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
		}
	}

	if c.JobRetention < 0 {
		errs = append(errs, fmt.Errorf("JobRetention cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// splitList splits a comma-separated env value, trimming whitespace and
// dropping empty entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
