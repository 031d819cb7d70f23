// Package dedup claims idempotency keys so a retried billing event is
// recorded once.
package dedup

import (
	"context"
	"time"

	"github.com/Jikima/VBot/internal/domain"
)

// DefaultTTL bounds how long a claimed key blocks replays.
const DefaultTTL = 24 * time.Hour

// store is the key-value subset the claimer depends on (ISP).
type store interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Claimer claims idempotency keys with a bounded lifetime.
type Claimer struct {
	db  store
	ttl time.Duration
}

// New creates a Claimer. A non-positive ttl falls back to DefaultTTL.
func New(db store, ttl time.Duration) *Claimer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Claimer{db: db, ttl: ttl}
}

// Claim returns true when the key is seen for the first time. A false
// result means an earlier request already claimed it and the caller
// should skip the side effect. An empty key claims nothing.
func (c *Claimer) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	first, err := c.db.SetNX(ctx, domain.KeyPrefix+"dedup:"+key, []byte("1"), c.ttl)
	if err != nil {
		return false, &domain.StorageError{Op: "dedup", Err: err}
	}
	return first, nil
}
