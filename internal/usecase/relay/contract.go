package relay

import (
	"context"

	"github.com/Jikima/VBot/internal/usecase/meter"
)

// Gate is the consumer interface for admission decisions.
type Gate interface {
	Allowed(identity string, group bool) bool
	IsWithinBudget(ctx context.Context, identity string, group bool) (bool, error)
}

// Biller records completed usage events.
type Biller interface {
	RecordEvent(ctx context.Context, ev meter.Event) (meter.Receipt, error)
}
