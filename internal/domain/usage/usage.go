package usage

import (
	"fmt"
	"strings"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/domain/usage/budget"
	"github.com/Jikima/VBot/internal/domain/usage/metrics"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// ParsePeriod normalizes a period name, accepting common aliases.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily":
		return PeriodDay, nil
	case "month", "monthly":
		return PeriodMonth, nil
	case "total", "all-time", "all_time", "alltime":
		return PeriodTotal, nil
	}
	return "", fmt.Errorf("budget period %q: %w", s, domain.ErrInvalidInput)
}

// Of picks this period's total out of a cost snapshot.
func (p Period) Of(s ledger.Snapshot) float64 {
	switch p {
	case PeriodDay:
		return s.Day
	case PeriodMonth:
		return s.Month
	default:
		return s.AllTime
	}
}

// Report is a usage and budget report for one identity.
type Report struct {
	period      Period
	identity    string
	displayName string
	costs       ledger.Snapshot
	day         metrics.Metrics
	month       metrics.Metrics
	budget      budget.Budget
}

// NewReport creates a usage report.
func NewReport(
	period Period, identity, displayName string,
	costs ledger.Snapshot, day, month metrics.Metrics, b budget.Budget,
) Report {
	return Report{
		period:      period,
		identity:    identity,
		displayName: displayName,
		costs:       costs,
		day:         day,
		month:       month,
		budget:      b,
	}
}

// Period returns the budget enforcement granularity.
func (r *Report) Period() Period { return r.period }

// Identity returns the identity the report is for.
func (r *Report) Identity() string { return r.identity }

// DisplayName returns the human-readable name.
func (r *Report) DisplayName() string { return r.displayName }

// Costs returns the cached cost aggregates.
func (r *Report) Costs() ledger.Snapshot { return r.costs }

// Day returns today's usage quantities.
func (r *Report) Day() metrics.Metrics { return r.day }

// Month returns this month's usage quantities.
func (r *Report) Month() metrics.Metrics { return r.month }

// Budget returns the budget status.
func (r *Report) Budget() budget.Budget { return r.budget }
