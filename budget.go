package vbot

import (
	"context"
	"time"
)

// Allowed reports whether the caller may use the service at all. Group
// traffic is always admitted; unknown identities in it run on the shared
// guest pool.
func (c *Client) Allowed(caller Caller) bool {
	return c.gateSvc.Allowed(caller.Identity, caller.Group)
}

// IsWithinBudget reports whether the caller still has budget left.
// Check it before forwarding a request upstream; record the usage after.
func (c *Client) IsWithinBudget(ctx context.Context, caller Caller) (ok bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("budget_check", start, err) }()

	return c.gateSvc.IsWithinBudget(ctx, caller.Identity, caller.Group)
}

// Budget returns the full budget snapshot for the caller. ErrNoAllowance
// means the identity is outside the allow-list and no guest pool applies.
func (c *Client) Budget(ctx context.Context, caller Caller) (b Budget, err error) {
	start := time.Now()
	defer func() { c.obs.observe("budget", start, err) }()

	snap, err := c.gateSvc.Describe(ctx, caller.Identity, caller.Group)
	if err != nil {
		return Budget{}, err
	}
	return budgetFromDomain(snap), nil
}
