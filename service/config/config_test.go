package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so test runs are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WALLET_ADDRESS",
		"SOLANA_RPC_URL",
		"CACHE_DIR",
		"OUTPUT_PATH",
		"PAGE_SIZE",
		"MAX_RETRIES",
		"FETCH_CONCURRENCY",
		"REQUEST_DELAY",
		"EARLIEST_TIME",
		"LOG_LEVEL",
		"METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultWalletAddress, cfg.WalletAddress)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.SolanaRPCURL)
	assert.Equal(t, "./signatures", cfg.CacheDir)
	assert.Equal(t, "./metaverse_purchases.csv", cfg.OutputPath)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1, cfg.FetchConcurrency)
	assert.Equal(t, 600*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, int64(0), cfg.EarliestTime)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLANA_RPC_URL", "https://rpc.example.com")
	t.Setenv("CACHE_DIR", "/tmp/sigs")
	t.Setenv("PAGE_SIZE", "250")
	t.Setenv("FETCH_CONCURRENCY", "4")
	t.Setenv("REQUEST_DELAY", "50ms")
	t.Setenv("EARLIEST_TIME", "1700000000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.SolanaRPCURL)
	assert.Equal(t, "/tmp/sigs", cfg.CacheDir)
	assert.Equal(t, 250, cfg.PageSize)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, 50*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, int64(1700000000), cfg.EarliestTime)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_InvalidInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAGE_SIZE", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAGE_SIZE")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUEST_DELAY", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_DELAY")
}

func TestValidate_InvalidWallet(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALLET_ADDRESS", "not-a-base58-key")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WalletAddress")
}

func TestValidate_Bounds(t *testing.T) {
	base := func() *Config {
		return &Config{
			WalletAddress:    DefaultWalletAddress,
			SolanaRPCURL:     "https://rpc.example.com",
			CacheDir:         "./signatures",
			OutputPath:       "./out.csv",
			PageSize:         1000,
			MaxRetries:       3,
			FetchConcurrency: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"page size zero", func(c *Config) { c.PageSize = 0 }, "PageSize"},
		{"page size over rpc max", func(c *Config) { c.PageSize = 1001 }, "PageSize"},
		{"max retries zero", func(c *Config) { c.MaxRetries = 0 }, "MaxRetries"},
		{"concurrency zero", func(c *Config) { c.FetchConcurrency = 0 }, "FetchConcurrency"},
		{"concurrency too high", func(c *Config) { c.FetchConcurrency = 9 }, "FetchConcurrency"},
		{"negative earliest time", func(c *Config) { c.EarliestTime = -1 }, "EarliestTime"},
		{"missing rpc url", func(c *Config) { c.SolanaRPCURL = "" }, "SolanaRPCURL"},
		{"missing cache dir", func(c *Config) { c.CacheDir = "" }, "CacheDir"},
		{"missing output path", func(c *Config) { c.OutputPath = "" }, "OutputPath"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWallet_ReturnsParsedKey(t *testing.T) {
	cfg := &Config{WalletAddress: DefaultWalletAddress}
	assert.Equal(t, DefaultWalletAddress, cfg.Wallet().String())
}
