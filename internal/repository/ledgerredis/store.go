// Package ledgerredis persists ledger records as single JSON values in a
// key-value store, for deployments where the ledger directory cannot be
// shared between replicas.
package ledgerredis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jikima/VBot/internal/db"
	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/repository/record"
)

// store is the consumer interface for ledger record operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store implements the ledger store on top of DB, one key per identity.
type Store struct {
	store store
}

// New creates a ledger record store.
func New(s store) *Store {
	return &Store{store: s}
}

// key namespaces a record under the service prefix.
func key(identity string) string {
	return domain.KeyPrefix + "ledger:" + identity
}

// Load reads and hydrates the ledger for identity.
func (s *Store) Load(ctx context.Context, identity string) (*ledger.Ledger, error) {
	raw, err := s.store.Get(ctx, key(identity))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("ledger %s: %w", identity, domain.ErrNotFound)
		}
		return nil, &domain.StorageError{Op: "read", Err: err}
	}

	rec, err := record.Decode(raw)
	if err != nil {
		return nil, err
	}
	return rec.ToLedger(identity)
}

// Save replaces the whole record for the ledger's identity. A SET of the
// complete document gives the same replace-all semantics as the file
// backend's rename.
func (s *Store) Save(ctx context.Context, l *ledger.Ledger) error {
	raw, err := record.Encode(record.FromLedger(l))
	if err != nil {
		return &domain.StorageError{Op: "encode", Err: err}
	}
	if err := s.store.Set(ctx, key(l.Identity), raw); err != nil {
		return &domain.StorageError{Op: "write", Err: err}
	}
	return nil
}
