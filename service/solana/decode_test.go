package solana

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a TransactionResultEnvelope from a Transaction.
// TransactionResultEnvelope has unexported fields, so we go through JSON.
func makeTransactionEnvelope(t *testing.T, tx *solana.Transaction) *rpc.TransactionResultEnvelope {
	t.Helper()

	txJSON, err := json.Marshal(tx)
	require.NoError(t, err)

	var temp struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	temp.Transaction = txJSON

	envelopeJSON, err := json.Marshal(temp)
	require.NoError(t, err)

	var result rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal(envelopeJSON, &result))
	return result.Transaction
}

func systemTransferData(lamports uint64) []byte {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], SystemProgramTransferInstruction)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return data
}

func tokenTransferData(amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = TokenProgramTransferInstruction
	binary.LittleEndian.PutUint64(data[1:9], amount)
	return data
}

func mintToData(amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = TokenProgramMintToInstruction
	binary.LittleEndian.PutUint64(data[1:9], amount)
	return data
}

func TestDecodeResult_SystemTransfer(t *testing.T) {
	fromAddr := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	toAddr := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []solana.PublicKey{fromAddr, toAddr, solana.SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 2,
					Accounts:       []uint16{0, 1},
					Data:           systemTransferData(2_000_000_000),
				},
			},
		},
	}

	sig := makeSignature(1, 1700000000)
	result := &rpc.GetTransactionResult{
		Transaction: makeTransactionEnvelope(t, tx),
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{5_000_000_000, 0, 1},
			PostBalances: []uint64{2_999_995_000, 2_000_000_000, 1},
		},
	}

	raw, err := decodeResult(sig, result)

	require.NoError(t, err)
	assert.Equal(t, sig.Signature.String(), raw.Signature)
	assert.Equal(t, int64(1700000000), raw.BlockTime)
	assert.Nil(t, raw.Err)
	assert.Equal(t, 1, raw.NumSigners)
	require.Len(t, raw.Instructions, 1)

	instruction := raw.Instructions[0]
	assert.Equal(t, KindSystemTransfer, instruction.Kind)
	assert.Equal(t, uint64(2_000_000_000), instruction.Lamports)
	assert.Equal(t, fromAddr.String(), instruction.Source)
	assert.Equal(t, toAddr.String(), instruction.Destination)
	assert.Equal(t, []uint64{5_000_000_000, 0, 1}, raw.PreBalances)
}

// The System Program address is 32 '1' characters (the zero key). A near-miss
// like "111...112" is a different key entirely, so the decoder must match the
// canonical address or every mainnet transfer comes back unrecognized.
func TestDecodeResult_CanonicalSystemProgramAddress(t *testing.T) {
	canonical := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	require.True(t, canonical.Equals(solana.SystemProgramID))
	assert.True(t, canonical.IsZero())

	fromAddr := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	toAddr := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{fromAddr, toAddr, canonical},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 2,
					Accounts:       []uint16{0, 1},
					Data:           systemTransferData(1_000_000_000),
				},
			},
		},
	}

	sig := makeSignature(9, 1700000600)
	result := &rpc.GetTransactionResult{Transaction: makeTransactionEnvelope(t, tx)}

	raw, err := decodeResult(sig, result)

	require.NoError(t, err)
	require.Len(t, raw.Instructions, 1)
	assert.Equal(t, KindSystemTransfer, raw.Instructions[0].Kind)
}

func TestDecodeResult_TokenInstructions(t *testing.T) {
	source := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	dest := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	authority := solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	mint := solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{source, dest, authority, mint, solana.TokenProgramID},
			Instructions: []solana.CompiledInstruction{
				{
					// Transfer: [source, destination, authority]
					ProgramIDIndex: 4,
					Accounts:       []uint16{0, 1, 2},
					Data:           tokenTransferData(1),
				},
				{
					// MintTo: [mint, destination, authority]
					ProgramIDIndex: 4,
					Accounts:       []uint16{3, 1, 2},
					Data:           mintToData(5),
				},
			},
		},
	}

	sig := makeSignature(2, 1700000100)
	result := &rpc.GetTransactionResult{Transaction: makeTransactionEnvelope(t, tx)}

	raw, err := decodeResult(sig, result)

	require.NoError(t, err)
	require.Len(t, raw.Instructions, 2)

	transfer := raw.Instructions[0]
	assert.Equal(t, KindTokenTransfer, transfer.Kind)
	assert.Equal(t, uint64(1), transfer.Amount)
	assert.Equal(t, source.String(), transfer.Source)
	assert.Equal(t, dest.String(), transfer.Destination)
	assert.Equal(t, authority.String(), transfer.Authority)

	mintTo := raw.Instructions[1]
	assert.Equal(t, KindTokenMintTo, mintTo.Kind)
	assert.Equal(t, uint64(5), mintTo.Amount)
	assert.Equal(t, mint.String(), mintTo.Mint)
	assert.Equal(t, dest.String(), mintTo.Destination)
}

func TestDecodeResult_TransferChecked(t *testing.T) {
	source := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	dest := solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	authority := solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")

	data := make([]byte, 10)
	data[0] = TokenProgramTransferCheckedInstruction
	binary.LittleEndian.PutUint64(data[1:9], 3)
	data[9] = 0 // NFT-style mint, zero decimals

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{source, mint, dest, authority, solana.TokenProgramID},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 4,
					Accounts:       []uint16{0, 1, 2, 3},
					Data:           data,
				},
			},
		},
	}

	sig := makeSignature(3, 1700000200)
	result := &rpc.GetTransactionResult{Transaction: makeTransactionEnvelope(t, tx)}

	raw, err := decodeResult(sig, result)

	require.NoError(t, err)
	require.Len(t, raw.Instructions, 1)
	instruction := raw.Instructions[0]
	assert.Equal(t, KindTokenTransferChecked, instruction.Kind)
	assert.Equal(t, uint64(3), instruction.Amount)
	assert.Equal(t, mint.String(), instruction.Mint)
	assert.Equal(t, dest.String(), instruction.Destination)
	assert.Equal(t, authority.String(), instruction.Authority)
}

func TestDecodeResult_UnrecognizedInstructionKeepsData(t *testing.T) {
	program := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	account := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{account, program},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 1,
					Accounts:       []uint16{0},
					Data:           []byte{0xde, 0xad, 0xbe, 0xef},
				},
			},
		},
	}

	sig := makeSignature(4, 1700000300)
	result := &rpc.GetTransactionResult{Transaction: makeTransactionEnvelope(t, tx)}

	raw, err := decodeResult(sig, result)

	require.NoError(t, err)
	require.Len(t, raw.Instructions, 1)
	instruction := raw.Instructions[0]
	assert.Equal(t, KindUnrecognized, instruction.Kind)
	assert.Equal(t, program.String(), instruction.Program)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, instruction.Data)
}

func TestDecodeResult_FailedTransactionMetadataOnly(t *testing.T) {
	sig := makeSignature(5, 1700000400)
	sig.Err = map[string]interface{}{"InstructionError": []interface{}{0, "InsufficientFunds"}}

	raw, err := decodeResult(sig, &rpc.GetTransactionResult{})

	require.NoError(t, err)
	assert.Equal(t, sig.Signature.String(), raw.Signature)
	require.NotNil(t, raw.Err)
	assert.Contains(t, *raw.Err, "transaction failed")
	assert.True(t, raw.Failed())
}

func TestDecodeResult_TokenBalances(t *testing.T) {
	buyer := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{buyer, solana.SystemProgramID},
		},
	}

	sig := makeSignature(6, 1700000500)
	result := &rpc.GetTransactionResult{
		Transaction: makeTransactionEnvelope(t, tx),
		Meta: &rpc.TransactionMeta{
			PostTokenBalances: []rpc.TokenBalance{
				{
					AccountIndex: 1,
					Mint:         mint,
					Owner:        &buyer,
					UiTokenAmount: &rpc.UiTokenAmount{
						Amount:   "4",
						Decimals: 0,
					},
				},
			},
		},
	}

	raw, err := decodeResult(sig, result)

	require.NoError(t, err)
	require.Len(t, raw.PostTokenBalances, 1)
	balance := raw.PostTokenBalances[0]
	assert.Equal(t, 1, balance.AccountIndex)
	assert.Equal(t, mint.String(), balance.Mint)
	assert.Equal(t, buyer.String(), balance.Owner)
	assert.Equal(t, "4", balance.Amount)
}

func TestRawTransaction_JSONRoundTripIgnoresUnknownFields(t *testing.T) {
	// Cache files written by a future version may carry extra fields.
	payload := []byte(`{
		"signature": "abc",
		"slot": 42,
		"blockTime": 1700000000,
		"accountKeys": ["x", "y"],
		"instructions": [{"kind": "system_transfer", "lamports": 7, "futureField": true}],
		"someNewTopLevelField": {"a": 1}
	}`)

	var raw RawTransaction
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, "abc", raw.Signature)
	assert.Equal(t, uint64(42), raw.Slot)
	require.Len(t, raw.Instructions, 1)
	assert.Equal(t, KindSystemTransfer, raw.Instructions[0].Kind)
	assert.Equal(t, uint64(7), raw.Instructions[0].Lamports)
}
