// Package ledger holds the per-identity usage and cost record and the
// period-rollover arithmetic that maintains its cached aggregates.
package ledger

import (
	"github.com/Jikima/VBot/internal/domain/date"
	"github.com/Jikima/VBot/internal/domain/pricing"
)

// Ledger is the full usage and cost record for one identity.
type Ledger struct {
	Identity    string
	DisplayName string
	Costs       Costs
	History     History
}

// Costs is the cached day/month/all-time aggregate. Day and month are a
// cache over History; AllTime is maintained incrementally once initialized.
type Costs struct {
	Day     float64
	Month   float64
	AllTime float64
	// HasAllTime is false for records written before all-time tracking
	// existed. The first access re-derives AllTime from History.
	HasAllTime bool
	LastUpdate date.Date
}

// History is the durable source of truth: per-day usage counters.
type History struct {
	ChatTokens           map[date.Date]int64
	TranscriptionSeconds map[date.Date]float64
	ImageCounts          map[date.Date][pricing.TierCount]int
}

// Snapshot is the O(1) cost view consulted by the budget gate.
type Snapshot struct {
	Day     float64
	Month   float64
	AllTime float64
}

// Rollups are the per-dimension day and month usage totals, for display.
type Rollups struct {
	TokensDay    int64
	TokensMonth  int64
	SecondsDay   float64
	SecondsMonth float64
	ImagesDay    [pricing.TierCount]int
	ImagesMonth  [pricing.TierCount]int
}

// New creates a zeroed ledger dated today.
func New(identity, displayName string, today date.Date) *Ledger {
	return &Ledger{
		Identity:    identity,
		DisplayName: displayName,
		Costs: Costs{
			HasAllTime: true,
			LastUpdate: today,
		},
		History: History{
			ChatTokens:           make(map[date.Date]int64),
			TranscriptionSeconds: make(map[date.Date]float64),
			ImageCounts:          make(map[date.Date][pricing.TierCount]int),
		},
	}
}

// AddChatTokens bills a completed chat event dated today and returns its cost.
func (l *Ledger) AddChatTokens(prices pricing.Table, today date.Date, tokens int64) float64 {
	cost := prices.ChatTokens(tokens)
	l.applyCost(prices, today, cost)
	l.History.ChatTokens[today] += tokens
	return cost
}

// AddTranscriptionSeconds bills transcribed audio dated today and returns its cost.
func (l *Ledger) AddTranscriptionSeconds(prices pricing.Table, today date.Date, seconds float64) float64 {
	cost := prices.Transcription(seconds)
	l.applyCost(prices, today, cost)
	l.History.TranscriptionSeconds[today] += seconds
	return cost
}

// AddImage bills one generated image of the given tier dated today and
// returns its cost. The tier must already be validated.
func (l *Ledger) AddImage(prices pricing.Table, today date.Date, tier pricing.Tier) float64 {
	cost := prices.ImagePrice(tier)
	l.applyCost(prices, today, cost)
	counts := l.History.ImageCounts[today]
	counts[tier]++
	l.History.ImageCounts[today] = counts
	return cost
}

// applyCost advances the cached aggregates for one event dated today.
// The all-time lazy initialization sums the history before the event is
// appended, so the event is never counted twice.
func (l *Ledger) applyCost(prices pricing.Table, today date.Date, cost float64) {
	if !l.Costs.HasAllTime {
		l.Costs.AllTime = l.AllTimeFromHistory(prices)
		l.Costs.HasAllTime = true
	}
	l.Costs.AllTime += cost

	switch {
	case today == l.Costs.LastUpdate:
		l.Costs.Day += cost
		l.Costs.Month += cost
	case today.SameMonth(l.Costs.LastUpdate):
		l.Costs.Month += cost
		l.Costs.Day = cost
	default:
		l.Costs.Month = cost
		l.Costs.Day = cost
	}
	l.Costs.LastUpdate = today
}

// CostSnapshot returns the cached aggregates as seen from today, without
// mutating anything. A ledger last updated on an earlier day reports a zero
// day total; one last updated in an earlier month also reports a zero month.
func (l *Ledger) CostSnapshot(today date.Date) Snapshot {
	s := Snapshot{AllTime: l.Costs.AllTime}
	switch {
	case today == l.Costs.LastUpdate:
		s.Day = l.Costs.Day
		s.Month = l.Costs.Month
	case today.SameMonth(l.Costs.LastUpdate):
		s.Month = l.Costs.Month
	}
	return s
}

// AllTimeFromHistory prices the entire history: quantities are summed per
// dimension first, then priced once. Used for lazy all-time initialization
// and for re-deriving aggregates from the source of truth.
func (l *Ledger) AllTimeFromHistory(prices pricing.Table) float64 {
	var tokens int64
	for _, n := range l.History.ChatTokens {
		tokens += n
	}

	var seconds float64
	for _, s := range l.History.TranscriptionSeconds {
		seconds += s
	}

	var images [pricing.TierCount]int
	for _, counts := range l.History.ImageCounts {
		for i, n := range counts {
			images[i] += n
		}
	}

	total := prices.ChatTokens(tokens) + prices.Transcription(seconds)
	for i, n := range images {
		total += float64(n) * prices.ImagePrice(pricing.Tier(i))
	}
	return total
}

// Rollups sums the history entries for today and today's month, per dimension.
func (l *Ledger) Rollups(today date.Date) Rollups {
	var r Rollups
	for d, n := range l.History.ChatTokens {
		if !d.SameMonth(today) {
			continue
		}
		r.TokensMonth += n
		if d == today {
			r.TokensDay += n
		}
	}
	for d, s := range l.History.TranscriptionSeconds {
		if !d.SameMonth(today) {
			continue
		}
		r.SecondsMonth += s
		if d == today {
			r.SecondsDay += s
		}
	}
	for d, counts := range l.History.ImageCounts {
		if !d.SameMonth(today) {
			continue
		}
		for i, n := range counts {
			r.ImagesMonth[i] += n
			if d == today {
				r.ImagesDay[i] += n
			}
		}
	}
	return r
}
