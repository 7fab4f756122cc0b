package purchase

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/solsales/service/solana"
)

// ErrMalformed marks transactions the parser cannot interpret. Callers log
// these and skip the record; they never halt the pipeline.
var ErrMalformed = errors.New("malformed transaction")

// Record is one extracted purchase: SOL moved from a buyer to the treasury
// with tokens landing at the buyer in the same transaction. Lamports is kept
// in the native smallest unit; conversion to decimal SOL happens only at
// report time.
type Record struct {
	Buyer      string
	Lamports   uint64
	TokenCount int64
	BlockTime  time.Time
	Signature  string
}

// Parser classifies raw transactions against the tracked treasury address.
type Parser struct {
	treasury string
}

// NewParser creates a Parser for the given treasury address.
func NewParser(treasury string) *Parser {
	return &Parser{treasury: treasury}
}

// Parse classifies a transaction as a purchase or not.
//
// A transaction is a purchase iff it contains both a native SOL transfer
// whose destination is the treasury and a token mint-or-transfer that lands
// tokens with the buyer inferred from that transfer. A (nil, nil) return
// means the transaction is not a purchase; that is the normal case for
// treasury-internal moves, airdrops, and anything else in the history.
//
// Batched transactions with several qualifying transfers are summed and
// attributed to the source of the first one. The buyer appearing as a
// secondary signer never makes it the treasury: matching is on the transfer
// destination, not on signer position.
func (p *Parser) Parse(txn *solana.RawTransaction) (*Record, error) {
	if txn == nil || txn.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformed)
	}

	// On-chain failures are cached but never become purchases.
	if txn.Failed() {
		return nil, nil
	}

	if len(txn.Instructions) == 0 && len(txn.AccountKeys) == 0 {
		return nil, fmt.Errorf("%w: %s has no instructions or account keys", ErrMalformed, txn.Signature)
	}

	buyer, lamports := p.paymentLeg(txn)
	if buyer == "" || lamports == 0 {
		return nil, nil
	}

	delta, err := buyerTokenDelta(txn, buyer)
	if err != nil {
		return nil, err
	}
	if !p.tokenLeg(txn, buyer, delta) {
		return nil, nil
	}

	count := int64(1)
	if delta.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		count = delta.IntPart()
	}

	return &Record{
		Buyer:      buyer,
		Lamports:   lamports,
		TokenCount: count,
		BlockTime:  txn.Time(),
		Signature:  txn.Signature,
	}, nil
}

// paymentLeg finds native transfers into the treasury. It returns the source
// of the first qualifying transfer as the buyer and the summed lamports of
// all qualifying transfers.
func (p *Parser) paymentLeg(txn *solana.RawTransaction) (string, uint64) {
	var buyer string
	var total uint64
	for _, instruction := range txn.Instructions {
		if instruction.Kind != solana.KindSystemTransfer {
			continue
		}
		if instruction.Destination != p.treasury {
			continue
		}
		if instruction.Source == p.treasury {
			continue // treasury shuffling funds with itself
		}
		if buyer == "" {
			buyer = instruction.Source
		}
		total += instruction.Lamports
	}
	return buyer, total
}

// tokenLeg reports whether the transaction mints or transfers tokens to the
// buyer. Token instructions name token accounts rather than wallets, so the
// destination is checked directly and, failing that, through the buyer's
// token balance delta: tokens actually arriving is what counts, owning some
// unrelated balance is not enough.
func (p *Parser) tokenLeg(txn *solana.RawTransaction, buyer string, delta decimal.Decimal) bool {
	var sawTokenInstruction bool
	for _, instruction := range txn.Instructions {
		switch instruction.Kind {
		case solana.KindTokenTransfer, solana.KindTokenTransferChecked, solana.KindTokenMintTo:
			sawTokenInstruction = true
			if instruction.Destination == buyer {
				return true
			}
		}
	}
	return sawTokenInstruction && delta.IsPositive()
}

// buyerTokenDelta is the buyer's token balance change across the transaction,
// in whole-token units. A missing pre-balance means this is the buyer's first
// purchase and counts from zero.
func buyerTokenDelta(txn *solana.RawTransaction, buyer string) (decimal.Decimal, error) {
	post, err := sumBalances(txn.PostTokenBalances, buyer, txn.Signature)
	if err != nil {
		return decimal.Zero, err
	}
	pre, err := sumBalances(txn.PreTokenBalances, buyer, txn.Signature)
	if err != nil {
		return decimal.Zero, err
	}
	return post.Sub(pre), nil
}

// sumBalances totals the owner's balances in whole-token units. Amounts are
// stored raw in the mint's smallest unit, so each entry is scaled by its own
// decimals before summing.
func sumBalances(balances []solana.TokenBalance, owner, signature string) (decimal.Decimal, error) {
	var total decimal.Decimal
	for _, balance := range balances {
		if balance.Owner != owner {
			continue
		}
		amount, err := decimal.NewFromString(balance.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s has unparseable token amount %q", ErrMalformed, signature, balance.Amount)
		}
		total = total.Add(amount.Shift(-int32(balance.Decimals)))
	}
	return total, nil
}
