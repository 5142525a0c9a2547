package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerLedgerPrefix = "handoff/ledger/"

// BadgerLedger stores one key per (target, hash) with a badger TTL, so
// retention is enforced by the store itself.
type BadgerLedger struct {
	db  *badger.DB
	ttl time.Duration
}

func NewBadgerLedger(db *badger.DB, ttl time.Duration) *BadgerLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &BadgerLedger{db: db, ttl: ttl}
}

func (l *BadgerLedger) key(target, hash string) []byte {
	return []byte(badgerLedgerPrefix + ledgerKey(target, hash))
}

func (l *BadgerLedger) Has(ctx context.Context, target, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(l.key(target, hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return found, nil
}

func (l *BadgerLedger) Record(ctx context.Context, target, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(l.key(target, hash), stamp).WithTTL(l.ttl))
	})
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}
