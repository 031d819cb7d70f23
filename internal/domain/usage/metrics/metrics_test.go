package metrics

import (
	"testing"

	"github.com/Jikima/VBot/internal/domain/pricing"
)

func TestNew(t *testing.T) {
	m := New(384200, 95.5, [pricing.TierCount]int{1, 2, 3})
	if m.ChatTokens() != 384200 {
		t.Errorf("ChatTokens() = %d", m.ChatTokens())
	}
	if m.TranscriptionSeconds() != 95.5 {
		t.Errorf("TranscriptionSeconds() = %v", m.TranscriptionSeconds())
	}
	if m.Images() != [pricing.TierCount]int{1, 2, 3} {
		t.Errorf("Images() = %v", m.Images())
	}
}

func TestNew_Zero(t *testing.T) {
	m := New(0, 0, [pricing.TierCount]int{})
	if m.ChatTokens() != 0 || m.TranscriptionSeconds() != 0 || m.Images() != [pricing.TierCount]int{} {
		t.Error("zero metrics should have zero values")
	}
}
