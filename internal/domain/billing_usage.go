package domain

import "context"

type billingUsageKey struct{}

// BillingUsage collects billing results for a single HTTP request.
// The handler puts a mutable pointer into the context before calling the service;
// the service writes after billing; the handler reads it for response headers.
type BillingUsage struct {
	Cost      float64
	Remaining float64
	Billed    bool // true if a cost was recorded, even a zero-quantity one
}

// NewContextWithBilling returns a context with an embedded billing collector.
func NewContextWithBilling(ctx context.Context) (context.Context, *BillingUsage) {
	u := &BillingUsage{}
	return context.WithValue(ctx, billingUsageKey{}, u), u
}

// BillingFromContext extracts the billing collector from context. Returns nil if not set.
func BillingFromContext(ctx context.Context) *BillingUsage {
	u, _ := ctx.Value(billingUsageKey{}).(*BillingUsage)
	return u
}

// Record notes a billed cost and the budget remaining after it.
func (u *BillingUsage) Record(cost, remaining float64) {
	if u != nil {
		u.Cost += cost
		u.Remaining = remaining
		u.Billed = true
	}
}
