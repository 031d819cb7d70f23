package date

import (
	"testing"
	"time"
)

func TestOf_TruncatesTimeOfDay(t *testing.T) {
	ts := time.Date(2025, time.August, 21, 23, 59, 58, 0, time.UTC)
	if got := Of(ts); got != "2025-08-21" {
		t.Errorf("expected 2025-08-21, got %s", got)
	}
}

func TestParse_Valid(t *testing.T) {
	d, err := Parse("2025-02-28")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != "2025-02-28" {
		t.Errorf("expected 2025-02-28, got %s", d)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "2025-13-01", "2025-02-30", "21.08.2025", "2025-8-1"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestSameMonth(t *testing.T) {
	cases := []struct {
		a, b Date
		want bool
	}{
		{"2025-08-01", "2025-08-31", true},
		{"2025-08-21", "2025-08-21", true},
		{"2025-08-31", "2025-09-01", false},
		{"2024-08-21", "2025-08-21", false},
		{"", "2025-08-21", false},
	}
	for _, c := range cases {
		if got := c.a.SameMonth(c.b); got != c.want {
			t.Errorf("SameMonth(%q, %q): got %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestOrdering_LexicographicIsChronological(t *testing.T) {
	if !("2025-08-21" < "2025-09-01") {
		t.Error("expected 2025-08-21 < 2025-09-01")
	}
	if !("2025-12-31" < "2026-01-01") {
		t.Error("expected 2025-12-31 < 2026-01-01")
	}
}
