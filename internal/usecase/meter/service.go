// Package meter bills usage events into ledgers and assembles usage reports.
package meter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/pricing"
	"github.com/Jikima/VBot/internal/domain/usage"
	dommetrics "github.com/Jikima/VBot/internal/domain/usage/metrics"
	"github.com/Jikima/VBot/internal/metrics"
)

// Service bills usage events and reports accumulated usage.
type Service struct {
	ledgers Recorder
	budget  BudgetReader
	logger  *zap.Logger
}

// New creates a Service.
func New(ledgers Recorder, budget BudgetReader, logger *zap.Logger) *Service {
	return &Service{ledgers: ledgers, budget: budget, logger: logger}
}

// RecordEvent bills one event to its identity's ledger. Group traffic from
// identities outside the allow-list is additionally billed to the shared
// guest ledger, the one their budget checks draw on. A persistence failure
// is returned after the in-memory ledger took the event; the receipt is
// valid either way.
func (s *Service) RecordEvent(ctx context.Context, ev Event) (Receipt, error) {
	if ev.Identity == "" {
		return Receipt{}, fmt.Errorf("empty identity: %w", domain.ErrInvalidInput)
	}

	cost, err := s.record(ctx, ev, ev.Identity, ev.DisplayName)
	if err != nil && !isStorageError(err) {
		return Receipt{}, err
	}
	storageErr := err
	receipt := Receipt{Cost: cost}

	if ev.Group && s.budget.UsesGuestPool(ev.Identity) {
		receipt.GuestBilled = true
		// Гостевой леджер оплачивает трафик неизвестных участников группы.
		if _, gerr := s.record(ctx, ev, domain.GuestIdentity, domain.GuestDisplayName); gerr != nil {
			s.logger.Warn("Failed to bill guest ledger",
				zap.String("identity", ev.Identity),
				zap.Error(gerr),
			)
		}
	}

	metrics.UsageEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	metrics.UsageCostTotal.WithLabelValues(string(ev.Kind)).Add(cost)

	if b, berr := s.budget.Describe(ctx, ev.Identity, ev.Group); berr == nil {
		receipt.Remaining = b.Remaining()
		metrics.BudgetRemaining.WithLabelValues(ev.Identity).Set(b.Remaining())
	}
	domain.BillingFromContext(ctx).Record(cost, receipt.Remaining)

	return receipt, storageErr
}

// record dispatches the event to the ledger call for its kind. Image sizes
// are resolved before any ledger is touched.
func (s *Service) record(ctx context.Context, ev Event, identity, displayName string) (float64, error) {
	switch ev.Kind {
	case KindChatTokens:
		return s.ledgers.RecordChatTokens(ctx, identity, displayName, ev.Tokens)
	case KindTranscriptionSeconds:
		return s.ledgers.RecordTranscriptionSeconds(ctx, identity, displayName, ev.Seconds)
	case KindImage:
		tier, err := pricing.ParseTier(ev.Size)
		if err != nil {
			return 0, err
		}
		return s.ledgers.RecordImage(ctx, identity, displayName, tier)
	default:
		return 0, fmt.Errorf("event kind %q: %w", ev.Kind, domain.ErrInvalidInput)
	}
}

// Report assembles the usage report for identity. Identities without any
// allowance still get their usage reported, with a zero budget attached.
func (s *Service) Report(ctx context.Context, identity string, group bool) (usage.Report, error) {
	v, err := s.ledgers.ViewOf(ctx, identity)
	if err != nil {
		return usage.Report{}, err
	}

	b, err := s.budget.Describe(ctx, identity, group)
	if err != nil && !errors.Is(err, domain.ErrNoAllowance) {
		return usage.Report{}, err
	}

	day := dommetrics.New(v.Rollups.TokensDay, v.Rollups.SecondsDay, v.Rollups.ImagesDay)
	month := dommetrics.New(v.Rollups.TokensMonth, v.Rollups.SecondsMonth, v.Rollups.ImagesMonth)
	return usage.NewReport(s.budget.Period(), identity, v.DisplayName, v.Costs, day, month, b), nil
}

func isStorageError(err error) bool {
	var se *domain.StorageError
	return errors.As(err, &se)
}
