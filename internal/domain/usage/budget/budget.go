package budget

import "math"

// Budget is the enforcement snapshot for one identity and period.
type Budget struct {
	allowance float64
	spent     float64
	remaining float64
	unlimited bool
}

// New creates a Budget snapshot. Remaining is allowance minus spent and may
// go negative once the allowance is overshot. Unlimited budgets report +Inf.
func New(allowance, spent float64, unlimited bool) Budget {
	if unlimited {
		return Budget{
			allowance: math.Inf(1),
			spent:     spent,
			remaining: math.Inf(1),
			unlimited: true,
		}
	}
	return Budget{
		allowance: allowance,
		spent:     spent,
		remaining: allowance - spent,
	}
}

// Allowance returns the configured cap in dollars.
func (b Budget) Allowance() float64 { return b.allowance }

// Spent returns the cost accumulated in the enforcement period.
func (b Budget) Spent() float64 { return b.spent }

// Remaining returns dollars left before the cap.
func (b Budget) Remaining() float64 { return b.remaining }

// Unlimited reports whether no cap applies.
func (b Budget) Unlimited() bool { return b.unlimited }

// IsExhausted reports whether the budget is spent.
func (b Budget) IsExhausted() bool { return b.remaining <= 0 }
