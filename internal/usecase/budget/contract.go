package budget

import (
	"context"

	domledger "github.com/Jikima/VBot/internal/domain/ledger"
)

// CostReader provides the cached cost aggregates the gate checks against.
// The read is O(1); the gate runs before every relayed request.
type CostReader interface {
	Snapshot(ctx context.Context, identity string) (domledger.Snapshot, error)
}
