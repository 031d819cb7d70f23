package metrics

import "github.com/Jikima/VBot/internal/domain/pricing"

// Metrics holds per-dimension usage quantities for a time period.
type Metrics struct {
	chatTokens           int64
	transcriptionSeconds float64
	images               [pricing.TierCount]int
}

// New creates a Metrics snapshot.
func New(chatTokens int64, transcriptionSeconds float64, images [pricing.TierCount]int) Metrics {
	return Metrics{
		chatTokens:           chatTokens,
		transcriptionSeconds: transcriptionSeconds,
		images:               images,
	}
}

// ChatTokens returns the tokens consumed by chat completions.
func (m Metrics) ChatTokens() int64 { return m.chatTokens }

// TranscriptionSeconds returns the seconds of transcribed audio.
func (m Metrics) TranscriptionSeconds() float64 { return m.transcriptionSeconds }

// Images returns generated image counts indexed by size tier.
func (m Metrics) Images() [pricing.TierCount]int { return m.images }
