package solana

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/solsales/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Endpoint identifies the RPC endpoint for metrics labeling
	// (e.g., "mainnet", "devnet", or the RPC hostname).
	Endpoint string

	// PageSize is the number of signatures requested per
	// getSignaturesForAddress page. The RPC caps this at 1000.
	PageSize int

	// MaxRetries is the per-item retry budget for transient failures.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff between retries.
	// Tests shrink this to keep runs fast.
	RetryDelay time.Duration

	// RequestDelay is the pause between consecutive getTransaction calls.
	// Public mainnet tolerates 1-2 RPS; premium endpoints can run much hotter.
	RequestDelay time.Duration
}

// Client provides methods for harvesting a wallet's transaction history.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	opts    ClientOptions
}

// NewClient creates a new Solana client. If m is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, opts ClientOptions, m *metrics.Metrics, logger *slog.Logger) *Client {
	if opts.PageSize <= 0 || opts.PageSize > 1000 {
		opts.PageSize = 1000
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Client{
		rpc:     rpcClient,
		logger:  logger,
		metrics: m,
		opts:    opts,
	}
}

// ListSignaturesParams contains parameters for listing signatures.
type ListSignaturesParams struct {
	Wallet solana.PublicKey

	// Before resumes paging from the oldest signature already known.
	Before *solana.Signature

	// EarliestTime stops paging once signatures older than this unix
	// timestamp are reached. Zero means no cutoff.
	EarliestTime int64
}

// ListSignatures pages backwards through the wallet's transaction history
// using the before-cursor, newest first, until the RPC returns an empty or
// short page. On a page failure after retries it returns the signatures
// collected so far along with the error, so callers can still make progress
// with a partial history.
func (c *Client) ListSignatures(ctx context.Context, params ListSignaturesParams) ([]*rpc.TransactionSignature, error) {
	var signatures []*rpc.TransactionSignature
	before := params.Before

	for {
		limit := c.opts.PageSize
		opts := &rpc.GetSignaturesForAddressOpts{
			Limit: &limit,
		}
		if before != nil {
			opts.Before = *before
		}

		c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
			"wallet", params.Wallet.String(),
			"limit", limit,
			"before", before,
		)

		page, err := c.getSignaturesPage(ctx, params.Wallet, opts)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to list signatures after retries",
				"wallet", params.Wallet.String(),
				"collected", len(signatures),
				"error", err,
			)
			return signatures, err
		}
		if c.metrics != nil {
			c.metrics.RecordRPCSignaturesPerCall(c.opts.Endpoint, float64(len(page)))
		}

		if len(page) == 0 {
			break // we hit the end of the history
		}

		done := false
		for _, sig := range page {
			if params.EarliestTime > 0 && sig.BlockTime != nil && int64(*sig.BlockTime) < params.EarliestTime {
				done = true
				break
			}
			signatures = append(signatures, sig)
		}
		if done {
			break
		}

		// A short page means the history is exhausted.
		if len(page) < c.opts.PageSize {
			break
		}

		last := page[len(page)-1].Signature
		before = &last
	}

	c.logger.InfoContext(ctx, "listed transaction signatures",
		"wallet", params.Wallet.String(),
		"count", len(signatures),
	)
	return signatures, nil
}

// getSignaturesPage fetches one page of signatures with retry and backoff.
func (c *Client) getSignaturesPage(ctx context.Context, wallet solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	var page []*rpc.TransactionSignature
	var err error

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		start := time.Now()
		page, err = c.rpc.GetSignaturesForAddress(ctx, wallet, opts)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetSignaturesForAddress", status, c.opts.Endpoint, duration)
		}

		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		backoff := c.backoff(attempt, err)
		c.logger.WarnContext(ctx, "failed to get signatures page, retrying",
			"wallet", wallet.String(),
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetSignaturesForAddress", retryReason(err))
		}
		if serr := sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
	}

	return nil, err
}

// FetchTransaction retrieves and decodes the full transaction for one
// signature, retrying transient failures with exponential backoff and
// handling rate limiting (429) with a longer backoff.
func (c *Client) FetchTransaction(ctx context.Context, sig *rpc.TransactionSignature) (*RawTransaction, error) {
	if c.opts.RequestDelay > 0 {
		if err := sleep(ctx, c.opts.RequestDelay); err != nil {
			return nil, err
		}
	}

	var result *rpc.GetTransactionResult
	var err error

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		// Fetch with support for versioned transactions.
		txnOpts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		start := time.Now()
		result, err = c.rpc.GetTransaction(ctx, sig.Signature, txnOpts)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetTransaction", status, c.opts.Endpoint, duration)
		}

		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Rate limiting gets a longer backoff than ordinary failures.
		if strings.Contains(err.Error(), "429") {
			backoff := time.Duration(2<<uint(attempt)) * c.opts.RetryDelay // 2x, 4x, 8x
			c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"signature", sig.Signature.String(),
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.opts.Endpoint)
				c.metrics.RecordRPCRetry("GetTransaction", "rate_limit")
			}
			if serr := sleep(ctx, backoff); serr != nil {
				return nil, serr
			}
			continue
		}

		// Some old transactions predate versioned encoding; retry as legacy.
		if strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", sig.Signature.String(),
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
			}
			legacyOpts := &rpc.GetTransactionOpts{
				Encoding: solana.EncodingBase64,
			}
			legacyStart := time.Now()
			result, err = c.rpc.GetTransaction(ctx, sig.Signature, legacyOpts)
			legacyDuration := time.Since(legacyStart).Seconds()

			legacyStatus := "success"
			if err != nil {
				legacyStatus = "error"
			}
			if c.metrics != nil {
				c.metrics.RecordRPCCall("GetTransaction", legacyStatus, c.opts.Endpoint, legacyDuration)
			}
			if err == nil {
				break
			}
		}

		backoff := c.backoff(attempt, err)
		c.logger.WarnContext(ctx, "failed to get transaction on attempt",
			"signature", sig.Signature.String(),
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "timeout_or_error")
		}
		if serr := sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
	}

	if err != nil {
		return nil, err
	}

	return decodeResult(sig, result)
}

func (c *Client) backoff(attempt int, err error) time.Duration {
	if strings.Contains(err.Error(), "429") {
		return time.Duration(2<<uint(attempt)) * c.opts.RetryDelay
	}
	return time.Duration(1<<uint(attempt)) * c.opts.RetryDelay
}

func retryReason(err error) string {
	if strings.Contains(err.Error(), "429") {
		return "rate_limit"
	}
	return "timeout_or_error"
}

// sleep waits for d or until the context is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
