// Package pricing maps usage events to monetary cost.
package pricing

import (
	"fmt"
	"math"

	"github.com/Jikima/VBot/internal/domain"
)

// Tier is one of the three fixed image-size categories.
type Tier int

const (
	TierSmall  Tier = iota // 256x256
	TierMedium             // 512x512
	TierLarge              // 1024x1024
)

// TierCount is the number of image tiers; history vectors are this long.
const TierCount = 3

var tierSizes = [TierCount]string{"256x256", "512x512", "1024x1024"}

// ParseTier resolves a requested image size to its tier.
// Anything outside the three known sizes is rejected before billing.
func ParseTier(size string) (Tier, error) {
	for i, s := range tierSizes {
		if s == size {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("image size %q: %w", size, domain.ErrInvalidInput)
}

// Size returns the pixel-size string the tier is requested by.
func (t Tier) Size() string {
	if t < 0 || t >= TierCount {
		return "unknown"
	}
	return tierSizes[t]
}

func (t Tier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	case TierLarge:
		return "large"
	}
	return "unknown"
}

// Table holds the configured unit prices.
type Table struct {
	// ChatPerThousandTokens is the price of 1000 chat tokens.
	ChatPerThousandTokens float64
	// TranscriptionPerMinute is the price of one minute of transcribed audio.
	TranscriptionPerMinute float64
	// Image holds one exact price per tier, indexed by Tier.
	Image [TierCount]float64
}

// ChatTokens prices n tokens, rounded to 6 decimal places.
func (t Table) ChatTokens(n int64) float64 {
	return round(float64(n)*t.ChatPerThousandTokens/1000, 6)
}

// Transcription prices seconds of audio, rounded to 2 decimal places.
func (t Table) Transcription(seconds float64) float64 {
	return round(seconds*t.TranscriptionPerMinute/60, 2)
}

// ImagePrice returns the exact configured price for a tier, no rounding.
func (t Table) ImagePrice(tier Tier) float64 {
	return t.Image[tier]
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
