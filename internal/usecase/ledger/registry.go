// Package ledger keeps the live per-identity ledgers and runs their
// load-mutate-persist cycle against the record store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/date"
	domledger "github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/domain/pricing"
	"github.com/Jikima/VBot/internal/metrics"
)

// Registry owns one live ledger per identity. All access to an identity
// goes through its entry lock, so a read-modify-write never interleaves
// with another event for the same identity.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	store   Store
	prices  pricing.Table
	now     func() time.Time
	logger  *zap.Logger
}

type entry struct {
	mu sync.Mutex
	l  *domledger.Ledger
}

// View is the read model handed to usage reports.
type View struct {
	Identity    string
	DisplayName string
	Costs       domledger.Snapshot
	Rollups     domledger.Rollups
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store, prices pricing.Table, logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		store:   store,
		prices:  prices,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source, for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) today() date.Date {
	return date.Of(r.now().UTC())
}

func (r *Registry) entryFor(identity string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[identity]
	if !ok {
		e = &entry{}
		r.entries[identity] = e
	}
	return e
}

// load returns the entry's live ledger, reading the store on first access.
// Missing and unreadable records start fresh; a storage failure is returned
// instead, so a temporary outage never silently zeroes an account.
// Callers hold e.mu.
func (r *Registry) load(ctx context.Context, e *entry, identity, displayName string) (*domledger.Ledger, error) {
	if e.l != nil {
		if e.l.DisplayName == "" {
			e.l.DisplayName = displayName
		}
		return e.l, nil
	}

	l, err := r.store.Load(ctx, identity)
	switch {
	case err == nil:
		if !l.Costs.HasAllTime {
			l.Costs.AllTime = l.AllTimeFromHistory(r.prices)
			l.Costs.HasAllTime = true
		}
		if l.DisplayName == "" {
			l.DisplayName = displayName
		}
	case errors.Is(err, domain.ErrNotFound):
		l = domledger.New(identity, displayName, r.today())
	case errors.Is(err, domain.ErrMalformedRecord):
		r.logger.Warn("Ledger record unreadable, starting fresh",
			zap.String("identity", identity),
			zap.Error(err),
		)
		l = domledger.New(identity, displayName, r.today())
	default:
		return nil, err
	}

	e.l = l
	return l, nil
}

// persist writes the whole record behind the event. On failure the
// in-memory ledger keeps its mutation and the error is returned for the
// caller to judge.
func (r *Registry) persist(ctx context.Context, l *domledger.Ledger) error {
	if err := r.store.Save(ctx, l); err != nil {
		metrics.LedgerWriteFailuresTotal.Inc()
		r.logger.Error("Failed to persist ledger",
			zap.String("identity", l.Identity),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// RecordChatTokens bills a completed chat exchange and returns its cost.
func (r *Registry) RecordChatTokens(ctx context.Context, identity, displayName string, tokens int64) (float64, error) {
	if tokens < 0 {
		return 0, fmt.Errorf("chat tokens %d: %w", tokens, domain.ErrInvalidInput)
	}

	e := r.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	l, err := r.load(ctx, e, identity, displayName)
	if err != nil {
		return 0, err
	}
	cost := l.AddChatTokens(r.prices, r.today(), tokens)
	return cost, r.persist(ctx, l)
}

// RecordTranscriptionSeconds bills transcribed audio and returns its cost.
func (r *Registry) RecordTranscriptionSeconds(ctx context.Context, identity, displayName string, seconds float64) (float64, error) {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("transcription seconds %v: %w", seconds, domain.ErrInvalidInput)
	}

	e := r.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	l, err := r.load(ctx, e, identity, displayName)
	if err != nil {
		return 0, err
	}
	cost := l.AddTranscriptionSeconds(r.prices, r.today(), seconds)
	return cost, r.persist(ctx, l)
}

// RecordImage bills one generated image of the given tier and returns its cost.
func (r *Registry) RecordImage(ctx context.Context, identity, displayName string, tier pricing.Tier) (float64, error) {
	if tier < 0 || tier >= pricing.TierCount {
		return 0, fmt.Errorf("image tier %d: %w", tier, domain.ErrInvalidInput)
	}

	e := r.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	l, err := r.load(ctx, e, identity, displayName)
	if err != nil {
		return 0, err
	}
	cost := l.AddImage(r.prices, r.today(), tier)
	return cost, r.persist(ctx, l)
}

// Snapshot returns the cost aggregates for identity as seen from today.
// An unknown identity gets a fresh zero ledger that is held in memory but
// not persisted until its first billed event.
func (r *Registry) Snapshot(ctx context.Context, identity string) (domledger.Snapshot, error) {
	e := r.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	l, err := r.load(ctx, e, identity, "")
	if err != nil {
		return domledger.Snapshot{}, err
	}
	return l.CostSnapshot(r.today()), nil
}

// ViewOf returns the full read model for usage reports.
func (r *Registry) ViewOf(ctx context.Context, identity string) (View, error) {
	e := r.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	l, err := r.load(ctx, e, identity, "")
	if err != nil {
		return View{}, err
	}
	today := r.today()
	return View{
		Identity:    l.Identity,
		DisplayName: l.DisplayName,
		Costs:       l.CostSnapshot(today),
		Rollups:     l.Rollups(today),
	}, nil
}
