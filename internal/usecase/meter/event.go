package meter

import (
	"fmt"
	"strings"

	"github.com/Jikima/VBot/internal/domain"
)

// Kind identifies a billable usage dimension.
type Kind string

// Billable event kinds.
const (
	KindChatTokens           Kind = "chat_tokens"
	KindTranscriptionSeconds Kind = "transcription_seconds"
	KindImage                Kind = "image"
)

// ParseKind normalizes an event kind name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat_tokens", "chat":
		return KindChatTokens, nil
	case "transcription_seconds", "transcription":
		return KindTranscriptionSeconds, nil
	case "image", "images":
		return KindImage, nil
	}
	return "", fmt.Errorf("event kind %q: %w", s, domain.ErrInvalidInput)
}

// Event is one billable action reported by the chat transport.
type Event struct {
	Identity    string
	DisplayName string
	// Group marks traffic from a group chat; unknown identities in groups
	// run on the shared guest pool.
	Group bool
	Kind  Kind
	// Tokens is the chat completion's total token count.
	Tokens int64
	// Seconds is the transcribed audio duration.
	Seconds float64
	// Size is the requested image size, one of the three known tiers.
	Size string
}

// Receipt reports what an event cost and what budget remains after it.
type Receipt struct {
	Cost float64
	// Remaining is zero when no budget applies to the identity.
	Remaining float64
	// GuestBilled marks events also charged to the shared guest ledger.
	GuestBilled bool
}
