package solana

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramMintToInstruction          = uint8(7)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// decodeResult converts a full GetTransactionResult into our RawTransaction
// schema. Instructions we recognize are decoded into tagged variants; the
// rest are kept as unrecognized with their raw data preserved.
func decodeResult(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) (*RawTransaction, error) {
	raw := &RawTransaction{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
	}
	if sig.BlockTime != nil {
		raw.BlockTime = int64(*sig.BlockTime)
	}
	if sig.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", sig.Err)
		raw.Err = &errMsg
	}

	// Transaction not available (pruned node, etc.) - keep metadata only.
	if result == nil || result.Transaction == nil {
		return raw, nil
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	accountKeys := tx.Message.AccountKeys
	raw.AccountKeys = make([]string, len(accountKeys))
	for i, key := range accountKeys {
		raw.AccountKeys[i] = key.String()
	}
	raw.NumSigners = int(tx.Message.Header.NumRequiredSignatures)

	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			continue
		}
		programID := accountKeys[instruction.ProgramIDIndex]
		raw.Instructions = append(raw.Instructions, decodeInstruction(programID, instruction, accountKeys))
	}

	if result.Meta != nil {
		if raw.Err == nil && result.Meta.Err != nil {
			errMsg := fmt.Sprintf("transaction failed: %v", result.Meta.Err)
			raw.Err = &errMsg
		}
		raw.PreBalances = result.Meta.PreBalances
		raw.PostBalances = result.Meta.PostBalances
		raw.PreTokenBalances = convertTokenBalances(result.Meta.PreTokenBalances)
		raw.PostTokenBalances = convertTokenBalances(result.Meta.PostTokenBalances)
	}

	return raw, nil
}

// decodeInstruction decodes a single compiled instruction into our tagged
// Instruction variant. Unknown programs and undecodable data fall through to
// KindUnrecognized.
func decodeInstruction(programID solana.PublicKey, instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) Instruction {
	out := Instruction{
		Kind:     KindUnrecognized,
		Program:  programID.String(),
		Accounts: resolveAccounts(instruction.Accounts, accountKeys),
	}

	if programID.Equals(solana.SystemProgramID) {
		if lamports, from, to, err := decodeSystemTransfer(instruction, accountKeys); err == nil {
			out.Kind = KindSystemTransfer
			out.Lamports = lamports
			out.Source = from
			out.Destination = to
			return out
		}
	}

	if programID.Equals(solana.TokenProgramID) || programID.Equals(solana.Token2022ProgramID) {
		if decoded, err := decodeTokenInstruction(instruction, accountKeys); err == nil {
			decoded.Program = out.Program
			decoded.Accounts = out.Accounts
			return decoded
		}
	}

	// Keep the raw data so unrecognized instructions stay inspectable.
	out.Data = instruction.Data
	return out
}

// decodeSystemTransfer extracts lamports, source, and destination from a
// System Program Transfer instruction.
func decodeSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (uint64, string, string, error) {
	// System Transfer instruction format:
	// [0..4]  = instruction type (u32, should be 2 for Transfer)
	// [4..12] = lamports (u64)
	if len(instruction.Data) < 12 {
		return 0, "", "", fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return 0, "", "", fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	lamports := binary.LittleEndian.Uint64(instruction.Data[4:12])

	// Account layout for Transfer: [from, to]
	if len(instruction.Accounts) < 2 {
		return 0, "", "", fmt.Errorf("transfer instruction missing accounts")
	}
	from, err := resolveAccount(instruction.Accounts[0], accountKeys)
	if err != nil {
		return 0, "", "", err
	}
	to, err := resolveAccount(instruction.Accounts[1], accountKeys)
	if err != nil {
		return 0, "", "", err
	}

	return lamports, from, to, nil
}

// decodeTokenInstruction decodes the SPL Token instructions we care about:
// Transfer, TransferChecked, and MintTo.
func decodeTokenInstruction(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (Instruction, error) {
	if len(instruction.Data) == 0 {
		return Instruction{}, fmt.Errorf("empty instruction data")
	}

	instructionType := instruction.Data[0]

	switch instructionType {
	case TokenProgramTransferInstruction:
		// Transfer instruction format:
		// [0]     = instruction type (u8, 3 = Transfer)
		// [1..9]  = amount (u64)
		if len(instruction.Data) < 9 {
			return Instruction{}, fmt.Errorf("transfer instruction data too short")
		}
		amount := binary.LittleEndian.Uint64(instruction.Data[1:9])

		// Account layout: [source, destination, authority]
		// Source and destination are token accounts, not wallet owners; the
		// owner mapping comes from the transaction's token balance entries.
		if len(instruction.Accounts) < 3 {
			return Instruction{}, fmt.Errorf("transfer instruction missing accounts")
		}
		source, _ := resolveAccount(instruction.Accounts[0], accountKeys)
		destination, _ := resolveAccount(instruction.Accounts[1], accountKeys)
		authority, _ := resolveAccount(instruction.Accounts[2], accountKeys)

		return Instruction{
			Kind:        KindTokenTransfer,
			Amount:      amount,
			Source:      source,
			Destination: destination,
			Authority:   authority,
		}, nil

	case TokenProgramTransferCheckedInstruction:
		// TransferChecked instruction format:
		// [0]      = instruction type (u8, 12 = TransferChecked)
		// [1..9]   = amount (u64)
		// [9]      = decimals (u8)
		if len(instruction.Data) < 10 {
			return Instruction{}, fmt.Errorf("transferChecked instruction data too short")
		}
		amount := binary.LittleEndian.Uint64(instruction.Data[1:9])

		// Account layout: [source, mint, destination, authority]
		if len(instruction.Accounts) < 4 {
			return Instruction{}, fmt.Errorf("transferChecked missing accounts")
		}
		source, _ := resolveAccount(instruction.Accounts[0], accountKeys)
		mint, _ := resolveAccount(instruction.Accounts[1], accountKeys)
		destination, _ := resolveAccount(instruction.Accounts[2], accountKeys)
		authority, _ := resolveAccount(instruction.Accounts[3], accountKeys)

		return Instruction{
			Kind:        KindTokenTransferChecked,
			Amount:      amount,
			Mint:        mint,
			Source:      source,
			Destination: destination,
			Authority:   authority,
		}, nil

	case TokenProgramMintToInstruction:
		// MintTo instruction format:
		// [0]     = instruction type (u8, 7 = MintTo)
		// [1..9]  = amount (u64)
		if len(instruction.Data) < 9 {
			return Instruction{}, fmt.Errorf("mintTo instruction data too short")
		}
		amount := binary.LittleEndian.Uint64(instruction.Data[1:9])

		// Account layout: [mint, destination, authority]
		if len(instruction.Accounts) < 3 {
			return Instruction{}, fmt.Errorf("mintTo missing accounts")
		}
		mint, _ := resolveAccount(instruction.Accounts[0], accountKeys)
		destination, _ := resolveAccount(instruction.Accounts[1], accountKeys)
		authority, _ := resolveAccount(instruction.Accounts[2], accountKeys)

		return Instruction{
			Kind:        KindTokenMintTo,
			Amount:      amount,
			Mint:        mint,
			Destination: destination,
			Authority:   authority,
		}, nil

	default:
		return Instruction{}, fmt.Errorf("unknown token instruction type: %d", instructionType)
	}
}

func resolveAccount(index uint16, accountKeys []solana.PublicKey) (string, error) {
	if int(index) >= len(accountKeys) {
		return "", fmt.Errorf("account index %d out of bounds", index)
	}
	return accountKeys[index].String(), nil
}

func resolveAccounts(indexes []uint16, accountKeys []solana.PublicKey) []string {
	out := make([]string, 0, len(indexes))
	for _, index := range indexes {
		if int(index) >= len(accountKeys) {
			out = append(out, strconv.Itoa(int(index)))
			continue
		}
		out = append(out, accountKeys[index].String())
	}
	return out
}

func convertTokenBalances(balances []rpc.TokenBalance) []TokenBalance {
	if len(balances) == 0 {
		return nil
	}
	out := make([]TokenBalance, 0, len(balances))
	for _, balance := range balances {
		entry := TokenBalance{
			AccountIndex: int(balance.AccountIndex),
			Mint:         balance.Mint.String(),
		}
		if balance.Owner != nil {
			entry.Owner = balance.Owner.String()
		}
		if balance.UiTokenAmount != nil {
			entry.Amount = balance.UiTokenAmount.Amount
			entry.Decimals = balance.UiTokenAmount.Decimals
		}
		out = append(out, entry)
	}
	return out
}
