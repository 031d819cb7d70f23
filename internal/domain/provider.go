package domain

import (
	"context"
	"fmt"
	"io"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatCompleter is the shared chat completion contract between layers.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []ChatMessage) (ChatCompletion, error)
}

// AudioTranscriber converts recorded audio to text.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audio AudioInput) (Transcript, error)
}

// ImageGenerator renders an image for a prompt at a requested size.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, size string) (GeneratedImage, error)
}

// HealthChecker verifies model provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ChatMessage is a single turn of a conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatCompletion carries the model reply and token usage through the billing chain.
type ChatCompletion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AudioInput is a named audio stream handed to the transcriber.
type AudioInput struct {
	Reader   io.Reader
	FileName string
}

// Transcript carries the transcription text and the audio duration used for billing.
type Transcript struct {
	Text            string
	DurationSeconds float64
}

// GeneratedImage is the provider's reference to a rendered image.
type GeneratedImage struct {
	URL string
}

// SystemPromptCompleter is a domain decorator that prepends a system message
// before completion.
type SystemPromptCompleter struct {
	inner  ChatCompleter
	prompt string
}

// NewSystemPromptCompleter creates a decorator that prepends a system prompt.
func NewSystemPromptCompleter(inner ChatCompleter, prompt string) *SystemPromptCompleter {
	return &SystemPromptCompleter{inner: inner, prompt: prompt}
}

// Complete prepends the system prompt and delegates to the inner completer.
// Conversations that already open with a system message pass through untouched.
func (c *SystemPromptCompleter) Complete(ctx context.Context, messages []ChatMessage) (ChatCompletion, error) {
	if c.prompt != "" && (len(messages) == 0 || messages[0].Role != RoleSystem) {
		prefixed := make([]ChatMessage, 0, len(messages)+1)
		prefixed = append(prefixed, ChatMessage{Role: RoleSystem, Content: c.prompt})
		prefixed = append(prefixed, messages...)
		messages = prefixed
	}

	result, err := c.inner.Complete(ctx, messages)
	if err != nil {
		return ChatCompletion{}, fmt.Errorf("system prompt complete: %w", err)
	}
	return result, nil
}
