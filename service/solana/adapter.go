package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// realRPCClient backs RPCClient with an actual solana-go client. The harvest
// pipeline only ever sees the interface, so tests swap this out wholesale.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient wraps a solana-go RPC client for the given endpoint URL.
// Endpoints that authenticate via API key take it as part of the URL, so no
// separate credential plumbing is needed here.
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

func (r *realRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	out, err := r.client.GetSignaturesForAddressWithOpts(ctx, address, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *realRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	return r.client.GetTransaction(ctx, signature, opts)
}
