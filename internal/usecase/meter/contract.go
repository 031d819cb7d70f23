package meter

import (
	"context"

	"github.com/Jikima/VBot/internal/domain/pricing"
	"github.com/Jikima/VBot/internal/domain/usage"
	dombudget "github.com/Jikima/VBot/internal/domain/usage/budget"
	uledger "github.com/Jikima/VBot/internal/usecase/ledger"
)

// Recorder is the ledger interface events are billed into.
type Recorder interface {
	RecordChatTokens(ctx context.Context, identity, displayName string, tokens int64) (float64, error)
	RecordTranscriptionSeconds(ctx context.Context, identity, displayName string, seconds float64) (float64, error)
	RecordImage(ctx context.Context, identity, displayName string, tier pricing.Tier) (float64, error)
	ViewOf(ctx context.Context, identity string) (uledger.View, error)
}

// BudgetReader resolves budget views for receipts and reports.
type BudgetReader interface {
	Period() usage.Period
	UsesGuestPool(identity string) bool
	Describe(ctx context.Context, identity string, group bool) (dombudget.Budget, error)
}
