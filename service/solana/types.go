package solana

import (
	"time"
)

// InstructionKind tags the decoded instruction variants we recognize.
// Anything we cannot decode is preserved as KindUnrecognized with its raw
// data intact, so a schema surprise is a value, not a runtime error.
type InstructionKind string

const (
	KindSystemTransfer       InstructionKind = "system_transfer"
	KindTokenTransfer        InstructionKind = "token_transfer"
	KindTokenTransferChecked InstructionKind = "token_transfer_checked"
	KindTokenMintTo          InstructionKind = "token_mint_to"
	KindUnrecognized         InstructionKind = "unrecognized"
)

// Instruction is one decoded instruction from a transaction's message.
// Decoded fields are populated according to Kind; Data carries the raw
// instruction bytes for unrecognized instructions.
type Instruction struct {
	Kind     InstructionKind `json:"kind"`
	Program  string          `json:"program"`
	Accounts []string        `json:"accounts,omitempty"`

	// system_transfer
	Lamports uint64 `json:"lamports,omitempty"`

	// token kinds
	Amount uint64 `json:"amount,omitempty"`
	Mint   string `json:"mint,omitempty"`

	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Authority   string `json:"authority,omitempty"`

	Data []byte `json:"data,omitempty"`
}

// TokenBalance is a pre- or post-transaction SPL token balance entry.
// Amount is the raw amount in the token's smallest unit, kept as a string
// exactly as the RPC reports it.
type TokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner,omitempty"`
	Amount       string `json:"amount"`
	Decimals     uint8  `json:"decimals"`
}

// RawTransaction is our explicit schema for one confirmed transaction, as
// written to and read from the local cache. Identity is the signature.
// Unknown JSON fields are ignored on read, so cache files written by newer
// versions of this tool remain loadable.
type RawTransaction struct {
	Signature   string   `json:"signature"`
	Slot        uint64   `json:"slot"`
	BlockTime   int64    `json:"blockTime"`
	Err         *string  `json:"err,omitempty"`
	AccountKeys []string `json:"accountKeys"`
	NumSigners  int      `json:"numSigners,omitempty"`

	Instructions []Instruction `json:"instructions"`

	PreBalances  []uint64 `json:"preBalances,omitempty"`
	PostBalances []uint64 `json:"postBalances,omitempty"`

	PreTokenBalances  []TokenBalance `json:"preTokenBalances,omitempty"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances,omitempty"`
}

// Time returns the block time as a time.Time in UTC.
func (t *RawTransaction) Time() time.Time {
	return time.Unix(t.BlockTime, 0).UTC()
}

// Failed reports whether the transaction errored on-chain.
func (t *RawTransaction) Failed() bool {
	return t.Err != nil
}
