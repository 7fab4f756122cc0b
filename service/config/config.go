package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// DefaultWalletAddress is the treasury wallet the tool tracks when no
// override is given: the Metaverse sales wallet where the SOL goes.
const DefaultWalletAddress = "Fwdp7bSAA1G4EsDn6DCkAuKSBRAJp7BjHutQptzQtzUG"

// Config holds all application configuration. Values come from environment
// variables with sensible defaults; CLI flags override on top. All fields
// are validated at startup to ensure fail-fast behavior.
type Config struct {
	// WalletAddress is the treasury account whose history is harvested.
	WalletAddress string

	// SolanaRPCURL is the JSON-RPC endpoint.
	SolanaRPCURL string

	// CacheDir is where raw transactions persist, one file per signature.
	CacheDir string

	// OutputPath is the report destination.
	OutputPath string

	// PageSize is the number of signatures per fetch page (RPC max 1000).
	PageSize int

	// MaxRetries is the per-item retry budget for transient failures.
	MaxRetries int

	// FetchConcurrency is the number of in-flight transaction fetches.
	// 1 means the sequential reference path.
	FetchConcurrency int

	// RequestDelay is the pause between consecutive getTransaction calls.
	RequestDelay time.Duration

	// EarliestTime stops fetching past this unix timestamp. Zero disables.
	EarliestTime int64

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// MetricsAddr, when set, exposes /metrics on this address during a run.
	MetricsAddr string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.WalletAddress = getEnvOrDefault("WALLET_ADDRESS", DefaultWalletAddress)
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	cfg.CacheDir = getEnvOrDefault("CACHE_DIR", "./signatures")
	cfg.OutputPath = getEnvOrDefault("OUTPUT_PATH", "./metaverse_purchases.csv")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	pageSize, err := parseInt("PAGE_SIZE", 1000)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.PageSize = pageSize

	maxRetries, err := parseInt("MAX_RETRIES", 3)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxRetries = maxRetries

	concurrency, err := parseInt("FETCH_CONCURRENCY", 1)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.FetchConcurrency = concurrency

	requestDelay, err := parseDuration("REQUEST_DELAY", "600ms")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RequestDelay = requestDelay

	earliest, err := parseInt("EARLIEST_TIME", 0)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.EarliestTime = int64(earliest)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.WalletAddress == "" {
		errs = append(errs, fmt.Errorf("WalletAddress is required"))
	} else if _, err := solana.PublicKeyFromBase58(c.WalletAddress); err != nil {
		errs = append(errs, fmt.Errorf("WalletAddress %q is not a valid public key: %w", c.WalletAddress, err))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.CacheDir == "" {
		errs = append(errs, fmt.Errorf("CacheDir is required"))
	}

	if c.OutputPath == "" {
		errs = append(errs, fmt.Errorf("OutputPath is required"))
	}

	if c.PageSize < 1 || c.PageSize > 1000 {
		errs = append(errs, fmt.Errorf("PageSize must be between 1 and 1000, got %d", c.PageSize))
	}

	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MaxRetries must be at least 1, got %d", c.MaxRetries))
	}

	if c.FetchConcurrency < 1 || c.FetchConcurrency > 8 {
		errs = append(errs, fmt.Errorf("FetchConcurrency must be between 1 and 8, got %d", c.FetchConcurrency))
	}

	if c.EarliestTime < 0 {
		errs = append(errs, fmt.Errorf("EarliestTime cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// Wallet returns the treasury address as a parsed public key. Validate must
// have succeeded first.
func (c *Config) Wallet() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.WalletAddress)
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

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
