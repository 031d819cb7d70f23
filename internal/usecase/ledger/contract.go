package ledger

import (
	"context"

	domledger "github.com/Jikima/VBot/internal/domain/ledger"
)

// Store is the persistence interface for ledger records. Save replaces the
// whole record; there are no partial updates.
type Store interface {
	Load(ctx context.Context, identity string) (*domledger.Ledger, error)
	Save(ctx context.Context, l *domledger.Ledger) error
}
