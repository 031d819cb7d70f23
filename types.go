package vbot

import (
	domledger "github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/domain/usage"
	dombudget "github.com/Jikima/VBot/internal/domain/usage/budget"
	dommetrics "github.com/Jikima/VBot/internal/domain/usage/metrics"
)

// Period is the budget enforcement granularity.
type Period string

// Period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// Caller identifies who an action is billed to. Group marks traffic from
// a group chat; identities outside the allow-list then run on the shared
// guest pool instead of being rejected.
type Caller struct {
	Identity    string
	DisplayName string
	Group       bool
}

// Pricing is the price table in dollars.
type Pricing struct {
	// ChatPerThousandTokens prices chat completions per 1000 tokens.
	ChatPerThousandTokens float64
	// TranscriptionPerMinute prices transcribed audio per minute.
	TranscriptionPerMinute float64
	// Image prices one generated image per size tier, smallest first
	// (256x256, 512x512, 1024x1024).
	Image [3]float64
}

// DefaultPricing returns the stock price table.
func DefaultPricing() Pricing {
	return Pricing{
		ChatPerThousandTokens:  0.002,
		TranscriptionPerMinute: 0.006,
		Image:                  [3]float64{0.016, 0.018, 0.02},
	}
}

// Policy is the budget policy. Allowances pair positionally with Allowed.
type Policy struct {
	// Period selects which cost aggregate allowances cap.
	Period Period
	// Admins are exempt from any cap.
	Admins []string
	// AllowEveryone admits any identity; the first allowance then applies
	// to all of them.
	AllowEveryone bool
	// Allowed lists admitted identities.
	Allowed []string
	// Unlimited removes the cap for all admitted identities.
	Unlimited bool
	// Allowances are per-identity caps in dollars, positional to Allowed.
	// Identities past the end of a shorter list get a zero allowance.
	Allowances []float64
	// GuestAllowance caps the shared pool billed for group traffic from
	// identities outside the allow-list.
	GuestAllowance float64
}

// Receipt reports what a recorded event cost and what budget remains
// after it.
type Receipt struct {
	Cost float64
	// Remaining is +Inf for unlimited budgets and zero when no budget
	// applies to the identity.
	Remaining float64
	// GuestBilled marks events also charged to the shared guest ledger.
	GuestBilled bool
}

// Costs are the cost aggregates of one ledger in dollars.
type Costs struct {
	Day     float64
	Month   float64
	AllTime float64
}

// Metrics are per-dimension usage quantities for a time period.
type Metrics struct {
	ChatTokens           int64
	TranscriptionSeconds float64
	// Images counts generated images per size tier, smallest first.
	Images [3]int
}

// Budget is the enforcement snapshot for one identity and period.
type Budget struct {
	// Allowance is +Inf when Unlimited.
	Allowance float64
	Spent     float64
	Remaining float64
	Unlimited bool
	Exhausted bool
}

// Report is the usage and budget report for one identity.
type Report struct {
	Period      Period
	Identity    string
	DisplayName string
	Costs       Costs
	Today       Metrics
	Month       Metrics
	Budget      Budget
}

func costsFromSnapshot(s domledger.Snapshot) Costs {
	return Costs{Day: s.Day, Month: s.Month, AllTime: s.AllTime}
}

func metricsFromDomain(m dommetrics.Metrics) Metrics {
	return Metrics{
		ChatTokens:           m.ChatTokens(),
		TranscriptionSeconds: m.TranscriptionSeconds(),
		Images:               m.Images(),
	}
}

func budgetFromDomain(b dombudget.Budget) Budget {
	return Budget{
		Allowance: b.Allowance(),
		Spent:     b.Spent(),
		Remaining: b.Remaining(),
		Unlimited: b.Unlimited(),
		Exhausted: b.IsExhausted(),
	}
}

func reportFromDomain(r usage.Report) Report {
	return Report{
		Period:      Period(r.Period()),
		Identity:    r.Identity(),
		DisplayName: r.DisplayName(),
		Costs:       costsFromSnapshot(r.Costs()),
		Today:       metricsFromDomain(r.Day()),
		Month:       metricsFromDomain(r.Month()),
		Budget:      budgetFromDomain(r.Budget()),
	}
}
