// Package record defines the durable JSON form of a ledger. The same
// document is written as a file body or a key-value entry.
package record

import (
	"encoding/json"
	"fmt"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/date"
	"github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/domain/pricing"
)

// Record is the persisted shape of one identity's ledger.
type Record struct {
	UserName     string  `json:"user_name"`
	CurrentCost  Cost    `json:"current_cost"`
	UsageHistory History `json:"usage_history"`
}

// Cost carries the cached period aggregates. AllTime is a pointer so that
// records written before all-time tracking stay distinguishable: a nil
// value makes the loaded ledger re-derive the total from history.
type Cost struct {
	Day        float64  `json:"day"`
	Month      float64  `json:"month"`
	AllTime    *float64 `json:"all_time,omitempty"`
	LastUpdate string   `json:"last_update"`
}

// History holds the per-day quantities of each usage dimension, keyed by
// ISO calendar day.
type History struct {
	ChatTokens           map[string]int64                  `json:"chat_tokens"`
	TranscriptionSeconds map[string]float64                `json:"transcription_seconds"`
	NumberImages         map[string][pricing.TierCount]int `json:"number_images"`
}

// FromLedger converts a live ledger to its persisted form.
func FromLedger(l *ledger.Ledger) Record {
	rec := Record{
		UserName: l.DisplayName,
		CurrentCost: Cost{
			Day:        l.Costs.Day,
			Month:      l.Costs.Month,
			LastUpdate: l.Costs.LastUpdate.String(),
		},
		UsageHistory: History{
			ChatTokens:           make(map[string]int64, len(l.History.ChatTokens)),
			TranscriptionSeconds: make(map[string]float64, len(l.History.TranscriptionSeconds)),
			NumberImages:         make(map[string][pricing.TierCount]int, len(l.History.ImageCounts)),
		},
	}
	if l.Costs.HasAllTime {
		allTime := l.Costs.AllTime
		rec.CurrentCost.AllTime = &allTime
	}
	for d, n := range l.History.ChatTokens {
		rec.UsageHistory.ChatTokens[d.String()] = n
	}
	for d, s := range l.History.TranscriptionSeconds {
		rec.UsageHistory.TranscriptionSeconds[d.String()] = s
	}
	for d, counts := range l.History.ImageCounts {
		rec.UsageHistory.NumberImages[d.String()] = counts
	}
	return rec
}

// ToLedger hydrates a ledger for identity from a loaded record. The stored
// display name wins over whatever the caller knows. History keys are kept
// as written; an entry under a day that never matches the calendar still
// counts toward the all-time total.
func (r Record) ToLedger(identity string) (*ledger.Ledger, error) {
	last, err := date.Parse(r.CurrentCost.LastUpdate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedRecord, err)
	}

	l := &ledger.Ledger{
		Identity:    identity,
		DisplayName: r.UserName,
		Costs: ledger.Costs{
			Day:        r.CurrentCost.Day,
			Month:      r.CurrentCost.Month,
			LastUpdate: last,
		},
		History: ledger.History{
			ChatTokens:           make(map[date.Date]int64, len(r.UsageHistory.ChatTokens)),
			TranscriptionSeconds: make(map[date.Date]float64, len(r.UsageHistory.TranscriptionSeconds)),
			ImageCounts:          make(map[date.Date][pricing.TierCount]int, len(r.UsageHistory.NumberImages)),
		},
	}
	if r.CurrentCost.AllTime != nil {
		l.Costs.AllTime = *r.CurrentCost.AllTime
		l.Costs.HasAllTime = true
	}
	for d, n := range r.UsageHistory.ChatTokens {
		l.History.ChatTokens[date.Date(d)] = n
	}
	for d, s := range r.UsageHistory.TranscriptionSeconds {
		l.History.TranscriptionSeconds[date.Date(d)] = s
	}
	for d, counts := range r.UsageHistory.NumberImages {
		l.History.ImageCounts[date.Date(d)] = counts
	}
	return l, nil
}

// Encode renders the record as compact JSON.
func Encode(r Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return raw, nil
}

// Decode parses raw bytes, reporting any syntax or shape problem as a
// malformed record.
func Decode(raw []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %w", domain.ErrMalformedRecord, err)
	}
	return r, nil
}
