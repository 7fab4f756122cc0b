package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/solsales/service/cache"
	"github.com/brojonat/solsales/service/config"
	"github.com/brojonat/solsales/service/metrics"
	"github.com/brojonat/solsales/service/purchase"
	"github.com/brojonat/solsales/service/solana"
	"github.com/brojonat/solsales/service/tracker"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the full pipeline: fetch, cache, parse, report",
		Action: func(c *cli.Context) error {
			trk, cfg, logger, m, err := buildTracker(c, true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stopMetrics := serveMetrics(cfg, m, logger)
			defer stopMetrics()

			if err := trk.Run(ctx); err != nil {
				if ctx.Err() != nil {
					logger.Info("interrupted; cached transactions remain usable on the next run")
					return nil
				}
				return err
			}
			return nil
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch and cache the wallet's transaction history without building a report",
		Action: func(c *cli.Context) error {
			trk, cfg, logger, m, err := buildTracker(c, true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stopMetrics := serveMetrics(cfg, m, logger)
			defer stopMetrics()

			stats, err := trk.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Info("interrupted; cached transactions remain usable on the next run")
					return nil
				}
				return err
			}
			fmt.Printf("Listed:         %d\n", stats.Listed)
			fmt.Printf("Already cached: %d\n", stats.AlreadyCached)
			fmt.Printf("Newly cached:   %d\n", stats.NewlyCached)
			fmt.Printf("Failed:         %d\n", stats.Failed)
			return nil
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Build the sales report from the local cache only (no network)",
		Action: func(c *cli.Context) error {
			trk, _, _, _, err := buildTracker(c, false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rows, err := trk.Report(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Report written with %d purchase rows\n", rows)
			return nil
		},
	}
}

// buildTracker wires the pipeline from config. withRPC controls whether a
// Solana client is constructed; the report-only path never touches the network.
func buildTracker(c *cli.Context, withRPC bool) (*tracker.Tracker, *config.Config, *slog.Logger, *metrics.Metrics, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
	}

	store, err := cache.NewFileStore(cfg.CacheDir)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var fetcher tracker.Fetcher
	if withRPC {
		rpcClient := solana.NewRPCClient(cfg.SolanaRPCURL)
		fetcher = solana.NewClient(rpcClient, solana.ClientOptions{
			Endpoint:     cfg.SolanaRPCURL,
			PageSize:     cfg.PageSize,
			MaxRetries:   cfg.MaxRetries,
			RequestDelay: cfg.RequestDelay,
		}, m, logger)
	}

	var before *solanago.Signature
	if s := c.String("before"); s != "" {
		sig, err := solanago.SignatureFromBase58(s)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("invalid --before signature %q: %w", s, err)
		}
		before = &sig
	}

	trk := tracker.New(tracker.Options{
		Wallet:       cfg.Wallet(),
		Before:       before,
		EarliestTime: cfg.EarliestTime,
		Concurrency:  cfg.FetchConcurrency,
		OutputPath:   cfg.OutputPath,
	}, fetcher, store, purchase.NewParser(cfg.WalletAddress), m, logger)

	return trk, cfg, logger, m, nil
}

// serveMetrics exposes /metrics while the pipeline runs, when configured.
// The returned func shuts the listener down.
func serveMetrics(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) func() {
	if cfg.MetricsAddr == "" || m == nil {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	return func() { srv.Close() }
}
