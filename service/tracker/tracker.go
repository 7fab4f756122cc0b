package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/solsales/service/cache"
	"github.com/brojonat/solsales/service/metrics"
	"github.com/brojonat/solsales/service/purchase"
	"github.com/brojonat/solsales/service/report"
	"github.com/brojonat/solsales/service/solana"
)

// Fetcher is the slice of the Solana client the tracker needs. It exists so
// tests can drive the pipeline without an RPC layer.
type Fetcher interface {
	ListSignatures(ctx context.Context, params solana.ListSignaturesParams) ([]*rpc.TransactionSignature, error)
	FetchTransaction(ctx context.Context, sig *rpc.TransactionSignature) (*solana.RawTransaction, error)
}

// Options configures a Tracker.
type Options struct {
	Wallet solanago.PublicKey

	// Before resumes history paging from this already-known signature.
	Before *solanago.Signature

	// EarliestTime stops fetching past this unix timestamp. Zero disables.
	EarliestTime int64

	// Concurrency is the number of in-flight transaction fetches (1-8).
	Concurrency int

	// OutputPath is where the report CSV lands.
	OutputPath string
}

// Tracker runs the harvest pipeline: fetch signatures, cache raw
// transactions, parse purchases, write the report. Each stage is usable on
// its own; Run chains them.
type Tracker struct {
	opts    Options
	fetcher Fetcher
	cache   cache.Store
	parser  *purchase.Parser
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Tracker. If m is nil, no metrics are recorded.
func New(opts Options, fetcher Fetcher, store cache.Store, parser *purchase.Parser, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Tracker{
		opts:    opts,
		fetcher: fetcher,
		cache:   store,
		parser:  parser,
		logger:  logger,
		metrics: m,
	}
}

// FetchStats summarizes one fetch pass.
type FetchStats struct {
	Listed        int
	AlreadyCached int
	NewlyCached   int
	Failed        int
}

// Fetch pages through the wallet's history and caches every transaction not
// already present. Per-item failures are logged and counted, never fatal; a
// cache write failure is fatal because the cache invariant cannot be
// guaranteed past it.
func (t *Tracker) Fetch(ctx context.Context) (FetchStats, error) {
	var stats FetchStats

	signatures, err := t.fetcher.ListSignatures(ctx, solana.ListSignaturesParams{
		Wallet:       t.opts.Wallet,
		Before:       t.opts.Before,
		EarliestTime: t.opts.EarliestTime,
	})
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		// Whatever pages we did get are still worth caching.
		t.logger.WarnContext(ctx, "signature listing incomplete, continuing with partial history",
			"collected", len(signatures),
			"error", err,
		)
	}
	stats.Listed = len(signatures)

	start := time.Now()

	// Bounded worker pool over per-signature fetches. Cache writes are
	// idempotent and keyed by signature, so ordering here does not matter;
	// the report sorts by block time downstream.
	sem := make(chan struct{}, t.opts.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error

	for _, sig := range signatures {
		if ctx.Err() != nil {
			break
		}
		mu.Lock()
		stop := fatal != nil
		mu.Unlock()
		if stop {
			break
		}

		if t.cache.Has(sig.Signature.String()) {
			stats.AlreadyCached++
			if t.metrics != nil {
				t.metrics.RecordCacheHit()
			}
			continue
		}
		if t.metrics != nil {
			t.metrics.RecordCacheMiss()
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(sig *rpc.TransactionSignature) {
			defer wg.Done()
			defer func() { <-sem }()

			txn, err := t.fetcher.FetchTransaction(ctx, sig)
			if err != nil {
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				t.logger.WarnContext(ctx, "failed to fetch transaction after retries, skipping",
					"signature", sig.Signature.String(),
					"error", err,
				)
				if t.metrics != nil {
					t.metrics.RecordTransactionFetched("failed")
				}
				return
			}

			if err := t.cache.Put(txn.Signature, txn); err != nil {
				mu.Lock()
				if fatal == nil {
					fatal = fmt.Errorf("cache write failed for %s: %w", txn.Signature, err)
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			stats.NewlyCached++
			mu.Unlock()
			if t.metrics != nil {
				t.metrics.RecordCacheWrite()
				t.metrics.RecordTransactionFetched("success")
			}
		}(sig)
	}
	wg.Wait()

	if fatal != nil {
		return stats, fatal
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	if stats.NewlyCached > 0 {
		t.logger.InfoContext(ctx, "new transactions cached",
			"count", stats.NewlyCached,
			"took", time.Since(start).String(),
		)
	}
	t.logger.InfoContext(ctx, "fetch pass complete",
		"listed", stats.Listed,
		"already_cached", stats.AlreadyCached,
		"newly_cached", stats.NewlyCached,
		"failed", stats.Failed,
	)
	return stats, nil
}

// Report parses every cached transaction and writes the purchase report.
// Malformed transactions are logged and skipped; a report write failure is
// fatal since producing the report is the program's entire purpose.
func (t *Tracker) Report(ctx context.Context) (int, error) {
	signatures, err := t.cache.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache: %w", err)
	}

	records := make([]purchase.Record, 0, len(signatures))
	for _, signature := range signatures {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		txn, err := t.cache.Get(signature)
		if err != nil {
			t.logger.WarnContext(ctx, "failed to load cached transaction, skipping",
				"signature", signature,
				"error", err,
			)
			if t.metrics != nil {
				t.metrics.RecordTransactionParsed("malformed")
			}
			continue
		}

		record, err := t.parser.Parse(txn)
		if err != nil {
			if !errors.Is(err, purchase.ErrMalformed) {
				return 0, err
			}
			t.logger.WarnContext(ctx, "could not interpret transaction, skipping",
				"signature", signature,
				"error", err,
			)
			if t.metrics != nil {
				t.metrics.RecordTransactionParsed("malformed")
			}
			continue
		}
		if record == nil {
			if t.metrics != nil {
				t.metrics.RecordTransactionParsed("ignored")
			}
			continue
		}

		records = append(records, *record)
		if t.metrics != nil {
			t.metrics.RecordTransactionParsed("purchase")
			t.metrics.RecordPurchase()
		}
	}

	if err := report.Write(t.opts.OutputPath, records); err != nil {
		return 0, err
	}
	if t.metrics != nil {
		t.metrics.SetReportRows(len(records))
	}

	t.logger.InfoContext(ctx, "report written",
		"path", t.opts.OutputPath,
		"cached_transactions", len(signatures),
		"purchases", len(records),
	)
	return len(records), nil
}

// Run executes the full pipeline: fetch-and-cache, then parse-and-report.
func (t *Tracker) Run(ctx context.Context) error {
	if _, err := t.Fetch(ctx); err != nil {
		return err
	}
	_, err := t.Report(ctx)
	return err
}
