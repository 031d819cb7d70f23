// Package budget resolves per-identity allowances and gates traffic on
// what remains of them.
package budget

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/usage"
	dombudget "github.com/Jikima/VBot/internal/domain/usage/budget"
)

// Policy is the allow-list and allowance configuration the gate evaluates.
type Policy struct {
	// Period is the budget window costs are charged against.
	Period usage.Period
	// AdminIDs are exempt from any allowance. Empty means no admins.
	AdminIDs []string
	// AllowAll admits every identity and gives each the first allowance.
	AllowAll bool
	// AllowedIDs is the explicit allow-list; Allowances is positional to it.
	AllowedIDs []string
	// Unlimited disables allowance checks for admitted identities.
	Unlimited  bool
	Allowances []float64
	// GuestAllowance covers group traffic from identities outside the
	// allow-list, charged to the shared guest ledger.
	GuestAllowance float64
}

// Gate answers allow-list and budget questions. All reads go through the
// cached aggregates, never the history.
type Gate struct {
	policy Policy
	costs  CostReader
	logger *zap.Logger
}

// New creates a Gate.
func New(policy Policy, costs CostReader, logger *zap.Logger) *Gate {
	return &Gate{policy: policy, costs: costs, logger: logger}
}

// Period returns the configured budget window.
func (g *Gate) Period() usage.Period { return g.policy.Period }

// IsAdmin reports whether identity administers the bot.
func (g *Gate) IsAdmin(identity string) bool {
	for _, id := range g.policy.AdminIDs {
		if id == identity {
			return true
		}
	}
	return false
}

func (g *Gate) allowedIndex(identity string) int {
	for i, id := range g.policy.AllowedIDs {
		if id == identity {
			return i
		}
	}
	return -1
}

// Allowed reports whether identity may use the service at all. Group
// traffic is admitted regardless of the allow-list; unknown identities in
// it run on the shared guest pool.
func (g *Gate) Allowed(identity string, group bool) bool {
	if g.policy.AllowAll || g.IsAdmin(identity) || g.allowedIndex(identity) >= 0 {
		return true
	}
	return group
}

// UsesGuestPool reports whether identity's budget comes out of the shared
// guest ledger rather than an allowance of its own.
func (g *Gate) UsesGuestPool(identity string) bool {
	return !g.policy.AllowAll && !g.IsAdmin(identity) && g.allowedIndex(identity) < 0
}

// Allowance resolves the identity's own allowance. ErrNoAllowance means
// the identity has none and only a group's guest pool could cover it.
func (g *Gate) Allowance(identity string) (float64, error) {
	if g.IsAdmin(identity) || g.policy.Unlimited {
		return math.Inf(1), nil
	}

	if g.policy.AllowAll {
		if len(g.policy.Allowances) == 0 {
			g.logger.Warn("Open allow-list with no allowances configured, treating as zero")
			return 0, nil
		}
		if len(g.policy.Allowances) > 1 {
			g.logger.Warn("Multiple allowances with an open allow-list, the first applies to everyone")
		}
		return g.policy.Allowances[0], nil
	}

	i := g.allowedIndex(identity)
	if i < 0 {
		return 0, fmt.Errorf("identity %s: %w", identity, domain.ErrNoAllowance)
	}
	if i >= len(g.policy.Allowances) {
		g.logger.Warn("Allowance list shorter than allow-list, treating as zero",
			zap.String("identity", identity),
		)
		return 0, nil
	}
	return g.policy.Allowances[i], nil
}

// Remaining computes allowance minus the window's accumulated cost.
// Identities outside the allow-list draw on the guest pool when the
// request comes from a group; otherwise ErrNoAllowance is returned.
func (g *Gate) Remaining(ctx context.Context, identity string, group bool) (float64, error) {
	allowance, err := g.Allowance(identity)
	if errors.Is(err, domain.ErrNoAllowance) {
		if !group {
			return 0, err
		}
		return g.remainingFor(ctx, domain.GuestIdentity, g.policy.GuestAllowance)
	}
	if err != nil {
		return 0, err
	}
	return g.remainingFor(ctx, identity, allowance)
}

func (g *Gate) remainingFor(ctx context.Context, identity string, allowance float64) (float64, error) {
	snap, err := g.costs.Snapshot(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("budget snapshot %s: %w", identity, err)
	}
	return allowance - g.policy.Period.Of(snap), nil
}

// IsWithinBudget reports whether identity still has budget left.
// Spending the allowance exactly exhausts it.
func (g *Gate) IsWithinBudget(ctx context.Context, identity string, group bool) (bool, error) {
	remaining, err := g.Remaining(ctx, identity, group)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Describe assembles the full budget view for identity, resolving the
// same allowance source Remaining uses.
func (g *Gate) Describe(ctx context.Context, identity string, group bool) (dombudget.Budget, error) {
	allowance, err := g.Allowance(identity)
	billed := identity
	switch {
	case errors.Is(err, domain.ErrNoAllowance):
		if !group {
			return dombudget.Budget{}, err
		}
		allowance = g.policy.GuestAllowance
		billed = domain.GuestIdentity
	case err != nil:
		return dombudget.Budget{}, err
	}

	snap, err := g.costs.Snapshot(ctx, billed)
	if err != nil {
		return dombudget.Budget{}, fmt.Errorf("budget snapshot %s: %w", billed, err)
	}
	spent := g.policy.Period.Of(snap)
	return dombudget.New(allowance, spent, math.IsInf(allowance, 1)), nil
}
