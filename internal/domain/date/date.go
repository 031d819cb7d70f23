// Package date provides the calendar-day value the ledger is keyed by.
package date

import (
	"fmt"
	"time"
)

const layout = "2006-01-02"

// Date is a calendar day in ISO form "YYYY-MM-DD", without a time-of-day
// component. Lexicographic order equals chronological order. The zero
// value "" is not a valid date.
type Date string

// Of truncates t to its calendar day.
func Of(t time.Time) Date {
	return Date(t.Format(layout))
}

// Parse validates s as an ISO calendar day.
func Parse(s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return Of(t), nil
}

// Valid reports whether d is a well-formed calendar day.
func (d Date) Valid() bool {
	_, err := time.Parse(layout, string(d))
	return err == nil
}

// SameMonth reports whether both dates fall in the same (year, month) pair.
func (d Date) SameMonth(other Date) bool {
	if len(d) < 7 || len(other) < 7 {
		return false
	}
	return d[:7] == other[:7]
}

func (d Date) String() string { return string(d) }
