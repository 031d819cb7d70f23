package budget

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	domledger "github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/domain/usage"
)

// --- Mock CostReader ---

type mockCostReader struct {
	snaps map[string]domledger.Snapshot
	err   error
}

func (m *mockCostReader) Snapshot(_ context.Context, identity string) (domledger.Snapshot, error) {
	if m.err != nil {
		return domledger.Snapshot{}, m.err
	}
	return m.snaps[identity], nil
}

func newGate(p Policy, snaps map[string]domledger.Snapshot) *Gate {
	if p.Period == "" {
		p.Period = usage.PeriodDay
	}
	return New(p, &mockCostReader{snaps: snaps}, zap.NewNop())
}

// --- Allowance resolution ---

func TestAllowance_Admin(t *testing.T) {
	g := newGate(Policy{AdminIDs: []string{"1"}, AllowedIDs: []string{"2"}, Allowances: []float64{5}}, nil)

	a, err := g.Allowance("1")
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if !math.IsInf(a, 1) {
		t.Errorf("admin allowance = %v, want +Inf", a)
	}
}

func TestAllowance_UnlimitedBudgets(t *testing.T) {
	g := newGate(Policy{Unlimited: true, AllowedIDs: []string{"2"}}, nil)

	a, err := g.Allowance("2")
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if !math.IsInf(a, 1) {
		t.Errorf("allowance = %v, want +Inf", a)
	}
}

func TestAllowance_OpenAllowList(t *testing.T) {
	// With an open allow-list only the first allowance applies, to everyone.
	g := newGate(Policy{AllowAll: true, Allowances: []float64{10, 20}}, nil)

	for _, identity := range []string{"2", "somebody-else"} {
		a, err := g.Allowance(identity)
		if err != nil {
			t.Fatalf("Allowance(%s): %v", identity, err)
		}
		if a != 10 {
			t.Errorf("allowance for %s = %v, want 10", identity, a)
		}
	}
}

func TestAllowance_Positional(t *testing.T) {
	g := newGate(Policy{
		AllowedIDs: []string{"a", "b", "c"},
		Allowances: []float64{1, 2, 3},
	}, nil)

	a, err := g.Allowance("b")
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if a != 2 {
		t.Errorf("allowance = %v, want 2", a)
	}
}

func TestAllowance_ShorterListIsZero(t *testing.T) {
	g := newGate(Policy{
		AllowedIDs: []string{"a", "b"},
		Allowances: []float64{1},
	}, nil)

	a, err := g.Allowance("b")
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if a != 0 {
		t.Errorf("allowance = %v, want 0 when the list is shorter", a)
	}
}

func TestAllowance_Unknown(t *testing.T) {
	g := newGate(Policy{AllowedIDs: []string{"a"}, Allowances: []float64{1}}, nil)

	if _, err := g.Allowance("stranger"); !errors.Is(err, domain.ErrNoAllowance) {
		t.Errorf("err = %v, want ErrNoAllowance", err)
	}
}

// --- Remaining ---

func TestRemaining_SubtractsPeriodCost(t *testing.T) {
	g := newGate(Policy{
		Period:     usage.PeriodMonth,
		AllowedIDs: []string{"42"},
		Allowances: []float64{10},
	}, map[string]domledger.Snapshot{
		"42": {Day: 1, Month: 4.2, AllTime: 30},
	})

	r, err := g.Remaining(context.Background(), "42", false)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if r != 5.8 {
		t.Errorf("remaining = %v, want 5.8", r)
	}
}

func TestRemaining_GuestPool(t *testing.T) {
	g := newGate(Policy{
		AllowedIDs:     []string{"a"},
		Allowances:     []float64{1},
		GuestAllowance: 1.0,
	}, map[string]domledger.Snapshot{
		domain.GuestIdentity: {Day: 0.25},
	})

	r, err := g.Remaining(context.Background(), "stranger", true)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if r != 0.75 {
		t.Errorf("guest remaining = %v, want 0.75", r)
	}
}

func TestRemaining_UnknownOutsideGroup(t *testing.T) {
	g := newGate(Policy{AllowedIDs: []string{"a"}, Allowances: []float64{1}}, nil)

	if _, err := g.Remaining(context.Background(), "stranger", false); !errors.Is(err, domain.ErrNoAllowance) {
		t.Errorf("err = %v, want ErrNoAllowance", err)
	}
}

func TestRemaining_SnapshotError(t *testing.T) {
	g := New(
		Policy{Period: usage.PeriodDay, AllowedIDs: []string{"a"}, Allowances: []float64{1}},
		&mockCostReader{err: errors.New("storage down")},
		zap.NewNop(),
	)

	if _, err := g.Remaining(context.Background(), "a", false); err == nil {
		t.Error("expected error from cost reader, got nil")
	}
}

// --- Gate decisions ---

func TestIsWithinBudget_ExactBoundary(t *testing.T) {
	snaps := map[string]domledger.Snapshot{
		"exhausted": {Day: 5.00},
		"close":     {Day: 4.99},
	}
	g := newGate(Policy{
		AllowedIDs: []string{"exhausted", "close"},
		Allowances: []float64{5.00, 5.00},
	}, snaps)
	ctx := context.Background()

	ok, err := g.IsWithinBudget(ctx, "exhausted", false)
	if err != nil {
		t.Fatalf("IsWithinBudget: %v", err)
	}
	if ok {
		t.Error("spending the whole allowance must exhaust the budget")
	}

	ok, err = g.IsWithinBudget(ctx, "close", false)
	if err != nil {
		t.Fatalf("IsWithinBudget: %v", err)
	}
	if !ok {
		t.Error("4.99 of 5.00 spent must still be within budget")
	}
}

func TestIsWithinBudget_AdminUnlimited(t *testing.T) {
	g := newGate(Policy{AdminIDs: []string{"1"}}, map[string]domledger.Snapshot{
		"1": {Day: 1e9},
	})

	ok, err := g.IsWithinBudget(context.Background(), "1", false)
	if err != nil {
		t.Fatalf("IsWithinBudget: %v", err)
	}
	if !ok {
		t.Error("admins are never out of budget")
	}
}

func TestAllowed(t *testing.T) {
	g := newGate(Policy{
		AdminIDs:   []string{"admin"},
		AllowedIDs: []string{"listed"},
		Allowances: []float64{1},
	}, nil)

	cases := []struct {
		identity string
		group    bool
		want     bool
	}{
		{"admin", false, true},
		{"listed", false, true},
		{"stranger", false, false},
		{"stranger", true, true},
	}
	for _, c := range cases {
		if got := g.Allowed(c.identity, c.group); got != c.want {
			t.Errorf("Allowed(%s, group=%v) = %v, want %v", c.identity, c.group, got, c.want)
		}
	}
}

func TestAllowed_OpenList(t *testing.T) {
	g := newGate(Policy{AllowAll: true, Allowances: []float64{1}}, nil)
	if !g.Allowed("anyone", false) {
		t.Error("open allow-list must admit everyone")
	}
}

func TestUsesGuestPool(t *testing.T) {
	g := newGate(Policy{
		AdminIDs:   []string{"admin"},
		AllowedIDs: []string{"listed"},
		Allowances: []float64{1},
	}, nil)

	if !g.UsesGuestPool("stranger") {
		t.Error("stranger must draw on the guest pool")
	}
	for _, identity := range []string{"admin", "listed"} {
		if g.UsesGuestPool(identity) {
			t.Errorf("%s must not draw on the guest pool", identity)
		}
	}
}

func TestUsesGuestPool_OpenList(t *testing.T) {
	g := newGate(Policy{AllowAll: true, Allowances: []float64{1}}, nil)
	if g.UsesGuestPool("anyone") {
		t.Error("open allow-list leaves nobody on the guest pool")
	}
}

// --- Describe ---

func TestDescribe_Listed(t *testing.T) {
	g := newGate(Policy{
		AllowedIDs: []string{"42"},
		Allowances: []float64{10},
	}, map[string]domledger.Snapshot{
		"42": {Day: 4.2},
	})

	b, err := g.Describe(context.Background(), "42", false)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if b.Unlimited() {
		t.Error("listed identity must not be unlimited")
	}
	if b.Allowance() != 10 || b.Spent() != 4.2 || b.Remaining() != 5.8 {
		t.Errorf("budget = %v/%v/%v, want 10/4.2/5.8", b.Allowance(), b.Spent(), b.Remaining())
	}
}

func TestDescribe_GuestFallback(t *testing.T) {
	g := newGate(Policy{
		AllowedIDs:     []string{"a"},
		Allowances:     []float64{1},
		GuestAllowance: 2,
	}, map[string]domledger.Snapshot{
		domain.GuestIdentity: {Day: 0.5},
	})

	b, err := g.Describe(context.Background(), "stranger", true)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if b.Allowance() != 2 || b.Spent() != 0.5 || b.Remaining() != 1.5 {
		t.Errorf("budget = %v/%v/%v, want 2/0.5/1.5", b.Allowance(), b.Spent(), b.Remaining())
	}
}

func TestDescribe_AdminUnlimited(t *testing.T) {
	g := newGate(Policy{AdminIDs: []string{"1"}}, map[string]domledger.Snapshot{
		"1": {Day: 3.25},
	})

	b, err := g.Describe(context.Background(), "1", false)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !b.Unlimited() {
		t.Error("admin budget must be unlimited")
	}
	if b.Spent() != 3.25 {
		t.Errorf("spent = %v, want 3.25 still reported", b.Spent())
	}
}

func TestDescribe_UnknownOutsideGroup(t *testing.T) {
	g := newGate(Policy{AllowedIDs: []string{"a"}, Allowances: []float64{1}}, nil)

	if _, err := g.Describe(context.Background(), "stranger", false); !errors.Is(err, domain.ErrNoAllowance) {
		t.Errorf("err = %v, want ErrNoAllowance", err)
	}
}
