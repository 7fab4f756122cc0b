package report

import (
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/brojonat/solsales/service/purchase"
)

// solDecimals is the number of decimal places in one SOL (1 SOL = 1e9 lamports).
const solDecimals = 9

var header = []string{"Timestamp", "Buyer", "SOL Paid", "Tokens Bought", "Txn Signature"}

// Write renders the purchase records as a CSV file at path. Rows are ordered
// ascending by block time (ties broken by signature), so identical record
// sets produce byte-identical files regardless of input order. The file is
// written to a temp path in the same directory and renamed into place, so a
// failure partway through never leaves a half-written report behind.
func Write(path string, records []purchase.Record) error {
	sorted := make([]purchase.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].BlockTime.Equal(sorted[j].BlockTime) {
			return sorted[i].BlockTime.Before(sorted[j].BlockTime)
		}
		return sorted[i].Signature < sorted[j].Signature
	})

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("failed to create temp report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, record := range sorted {
		row := []string{
			record.BlockTime.UTC().Format("2006-01-02 15:04:05"),
			record.Buyer,
			FormatSOL(record.Lamports),
			strconv.FormatInt(record.TokenCount, 10),
			record.Signature,
		}
		if err := writer.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write report row for %s: %w", record.Signature, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to finalize report at %s: %w", path, err)
	}
	return nil
}

// FormatSOL converts lamports to a decimal SOL string with no float drift.
func FormatSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals).String()
}
