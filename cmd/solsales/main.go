package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/solsales/service/config"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "solsales",
		Usage: "Harvest a Solana treasury wallet's sales history into a local cache and a CSV report",
		Description: `Pages through the treasury wallet's full transaction history, caches every
raw transaction to disk keyed by signature, classifies cached transactions
into purchase records, and writes a spreadsheet of sales.

Re-running is cheap: cached transactions are never re-fetched, and the
report is rebuilt from the cache alone.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			runCommand(),
			fetchCommand(),
			reportCommand(),
			cacheCommands(),
		},
		// Global flags available to all commands; env vars take effect when
		// the flag is not given.
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Treasury wallet address to track",
				EnvVars: []string{"WALLET_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana JSON-RPC endpoint",
				EnvVars: []string{"SOLANA_RPC_URL"},
			},
			&cli.StringFlag{
				Name:    "cache-dir",
				Usage:   "Directory where raw transactions persist",
				EnvVars: []string{"CACHE_DIR"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Report destination path",
				EnvVars: []string{"OUTPUT_PATH"},
			},
			&cli.IntFlag{
				Name:    "page-size",
				Usage:   "Signatures per fetch page (max 1000)",
				EnvVars: []string{"PAGE_SIZE"},
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Usage:   "Per-item retry budget for transient failures",
				EnvVars: []string{"MAX_RETRIES"},
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "In-flight transaction fetches (1 = sequential)",
				EnvVars: []string{"FETCH_CONCURRENCY"},
			},
			&cli.Int64Flag{
				Name:    "earliest-time",
				Usage:   "Stop fetching past this unix timestamp",
				EnvVars: []string{"EARLIEST_TIME"},
			},
			&cli.StringFlag{
				Name:    "before",
				Usage:   "Resume paging from this already-known signature",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Expose Prometheus /metrics on this address during a run",
				EnvVars: []string{"METRICS_ADDR"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig loads env-based configuration and layers CLI flag overrides on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("wallet") {
		cfg.WalletAddress = c.String("wallet")
	}
	if c.IsSet("rpc-url") {
		cfg.SolanaRPCURL = c.String("rpc-url")
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("output") {
		cfg.OutputPath = c.String("output")
	}
	if c.IsSet("page-size") {
		cfg.PageSize = c.Int("page-size")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("concurrency") {
		cfg.FetchConcurrency = c.Int("concurrency")
	}
	if c.IsSet("earliest-time") {
		cfg.EarliestTime = c.Int64("earliest-time")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger creates a structured logger with the specified level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
