// Package ledger gives a Bank durable storage across restarts, adapting
// the teacher's blockchain.BlockChain Badger wiring (blockchain/blockchain.go)
// from an append-only block store to a single latest-snapshot-per-bank
// store: each SaveBank overwrites the previous snapshot under that
// bank's key, since a Bank (unlike a chain) has no history worth
// keeping, only current state.
package ledger

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/offlinecheck/checkbook/checkbook/bank"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
)

// Store wraps a Badger database holding bank snapshots.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a ledger store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := openDB(path, opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bankKey(identifier uint32) []byte {
	return []byte(fmt.Sprintf("bank:%d", identifier))
}

// SaveBank persists b's current state, replacing any prior snapshot.
func (s *Store) SaveBank(b *bank.Bank) error {
	snap, err := b.Snapshot()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bankKey(snap.Identifier), buf.Bytes())
	})
}

// LoadBank restores the bank registered under identifier, re-joining
// registry if non-nil. Returns badger.ErrKeyNotFound if no snapshot
// exists yet.
func (s *Store) LoadBank(identifier uint32, cfg config.Config, clk clock.Clock, registry *bank.Registry) (*bank.Bank, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bankKey(identifier))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var snap bank.Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, err
	}
	return bank.Restore(snap, cfg, clk, registry)
}

// Exists reports whether path already holds a Badger database, the same
// MANIFEST-file check the teacher's DBExists performs.
func Exists(path string) bool {
	_, err := os.Stat(path + "/MANIFEST")
	return !os.IsNotExist(err)
}

func retry(dir string, originalOpts badger.Options) (*badger.DB, error) {
	lockPath := filepath.Join(dir, "LOCK")
	if err := os.Remove(lockPath); err != nil {
		return nil, fmt.Errorf("ledger: failed to remove lock file: %w", err)
	}
	return badger.Open(originalOpts)
}

func openDB(dir string, opts badger.Options) (*badger.DB, error) {
	db, err := badger.Open(opts)
	if err == nil {
		return db, nil
	}
	if strings.Contains(err.Error(), "LOCK") {
		if db, err := retry(dir, opts); err == nil {
			return db, nil
		}
	}
	return nil, err
}
