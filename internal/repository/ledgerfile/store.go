// Package ledgerfile persists one JSON record per identity in a flat
// directory, the default storage backend.
package ledgerfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/repository/record"
)

// Store reads and writes ledger records under a single directory.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// path maps an identity to its record file. Escaping keeps identities
// containing separators from addressing files outside the directory.
func (s *Store) path(identity string) string {
	return filepath.Join(s.dir, url.PathEscape(identity)+".json")
}

// Load reads and hydrates the ledger for identity.
func (s *Store) Load(_ context.Context, identity string) (*ledger.Ledger, error) {
	raw, err := os.ReadFile(s.path(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ledger %s: %w", identity, domain.ErrNotFound)
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "read", Err: err}
	}

	rec, err := record.Decode(raw)
	if err != nil {
		return nil, err
	}
	return rec.ToLedger(identity)
}

// Save writes the whole record for the ledger's identity, replacing any
// previous version. The write goes to a temp file first and is renamed
// into place, so readers never observe a partial record.
func (s *Store) Save(_ context.Context, l *ledger.Ledger) error {
	raw, err := record.Encode(record.FromLedger(l))
	if err != nil {
		return &domain.StorageError{Op: "encode", Err: err}
	}
	if err := s.writeAtomic(s.path(l.Identity), raw); err != nil {
		return &domain.StorageError{Op: "write", Err: err}
	}
	return nil
}

func (s *Store) writeAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Ping verifies the directory is still writable.
func (s *Store) Ping(_ context.Context) error {
	tmp, err := os.CreateTemp(s.dir, ".ping.*.tmp")
	if err != nil {
		return fmt.Errorf("ledger directory not writable: %w", err)
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return nil
}
