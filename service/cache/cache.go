package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brojonat/solsales/service/solana"
)

// ErrNotFound is returned by Get when no entry exists for a signature.
var ErrNotFound = errors.New("transaction not found in cache")

// Store is the key-value abstraction over the transaction cache. Keys are
// transaction signatures; values are immutable once written. Backing the
// interface with something other than flat files (an embedded KV store, say)
// must not change caller behavior.
type Store interface {
	Has(signature string) bool
	Get(signature string) (*solana.RawTransaction, error)
	Put(signature string, txn *solana.RawTransaction) error

	// GetRaw returns the stored bytes for a signature, for inspection
	// tooling that wants the JSON as-is.
	GetRaw(signature string) ([]byte, error)

	// List returns all cached signatures in lexical order.
	List() ([]string, error)
}

// FileStore persists one JSON file per signature in a dedicated directory.
// No indexing, no compaction: lookups are by exact key only and the total
// volume is bounded (low thousands of transactions).
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed and verifies it is
// writable. A failure here is a setup error and should abort the run.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("cache directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory path.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(signature string) string {
	return filepath.Join(s.dir, signature+".json")
}

// Has reports whether a transaction with the given signature is cached.
func (s *FileStore) Has(signature string) bool {
	_, err := os.Stat(s.path(signature))
	return err == nil
}

// Get loads a cached transaction. Returns ErrNotFound if absent.
func (s *FileStore) Get(signature string) (*solana.RawTransaction, error) {
	data, err := s.GetRaw(signature)
	if err != nil {
		return nil, err
	}
	var txn solana.RawTransaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", signature, err)
	}
	return &txn, nil
}

// GetRaw loads the stored bytes for a signature. Returns ErrNotFound if absent.
func (s *FileStore) GetRaw(signature string) ([]byte, error) {
	data, err := os.ReadFile(s.path(signature))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, signature)
		}
		return nil, fmt.Errorf("failed to read cache entry %s: %w", signature, err)
	}
	return data, nil
}

// Put writes a transaction to the cache. An existing entry is left alone:
// entries are immutable and re-runs must never clobber them. The write goes
// to a temp file first and is renamed into place, so an interrupted run
// loses at most the in-flight entry.
func (s *FileStore) Put(signature string, txn *solana.RawTransaction) error {
	if s.Has(signature) {
		return nil
	}

	// Pretty printed, so cache entries stay greppable by hand.
	data, err := json.MarshalIndent(txn, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transaction %s: %w", signature, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry %s: %w", signature, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache entry %s: %w", signature, err)
	}
	if err := os.Rename(tmp.Name(), s.path(signature)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize cache entry %s: %w", signature, err)
	}
	return nil
}

// List returns all cached signatures in lexical order.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory %s: %w", s.dir, err)
	}
	signatures := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		signatures = append(signatures, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(signatures)
	return signatures, nil
}
