// Package relay fronts the model provider with allow-list and budget
// checks and bills every completed request.
package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/pricing"
	"github.com/Jikima/VBot/internal/metrics"
	"github.com/Jikima/VBot/internal/usecase/meter"
)

// Caller identifies who a relayed request is billed to.
type Caller struct {
	Identity    string
	DisplayName string
	// Group marks requests originating in a group chat.
	Group bool
}

// Providers bundles the upstream model clients. Nil members disable their
// endpoints.
type Providers struct {
	Chat        domain.ChatCompleter
	Transcriber domain.AudioTranscriber
	Images      domain.ImageGenerator
}

// Service relays requests to the model provider, gated on budget.
type Service struct {
	providers        Providers
	gate             Gate
	biller           Biller
	defaultImageSize string
	logger           *zap.Logger
}

// New creates a Service.
func New(providers Providers, gate Gate, biller Biller, logger *zap.Logger) *Service {
	return &Service{
		providers:        providers,
		gate:             gate,
		biller:           biller,
		defaultImageSize: pricing.TierMedium.Size(),
		logger:           logger,
	}
}

// WithDefaultImageSize sets the size used when a request does not name one.
func (s *Service) WithDefaultImageSize(size string) *Service {
	if size != "" {
		s.defaultImageSize = size
	}
	return s
}

// admit runs the allow-list check, then the budget check, in that order.
func (s *Service) admit(ctx context.Context, c Caller) error {
	if !s.gate.Allowed(c.Identity, c.Group) {
		s.logger.Warn("Identity is not allowed to use the service",
			zap.String("identity", c.Identity),
		)
		metrics.BudgetRejectionsTotal.WithLabelValues("not_allowed").Inc()
		return fmt.Errorf("identity %s: %w", c.Identity, domain.ErrNotAllowed)
	}

	ok, err := s.gate.IsWithinBudget(ctx, c.Identity, c.Group)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if !ok {
		s.logger.Warn("Identity reached its usage limit",
			zap.String("identity", c.Identity),
		)
		metrics.BudgetRejectionsTotal.WithLabelValues("exhausted").Inc()
		return fmt.Errorf("identity %s: %w", c.Identity, domain.ErrBudgetExceeded)
	}
	return nil
}

// bill records the event for a successful upstream call.
// Ответ уже получен, поэтому ошибку записи только логируем.
func (s *Service) bill(ctx context.Context, c Caller, ev meter.Event) {
	if _, err := s.biller.RecordEvent(ctx, ev); err != nil {
		s.logger.Error("Failed to bill relayed request",
			zap.String("identity", c.Identity),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

// Chat relays a chat completion and bills its token usage.
func (s *Service) Chat(ctx context.Context, c Caller, messages []domain.ChatMessage) (domain.ChatCompletion, error) {
	if s.providers.Chat == nil {
		return domain.ChatCompletion{}, fmt.Errorf("chat relay: %w", domain.ErrNotImplemented)
	}
	if len(messages) == 0 {
		return domain.ChatCompletion{}, fmt.Errorf("empty conversation: %w", domain.ErrInvalidInput)
	}
	if err := s.admit(ctx, c); err != nil {
		return domain.ChatCompletion{}, err
	}

	completion, err := s.providers.Chat.Complete(ctx, messages)
	if err != nil {
		return domain.ChatCompletion{}, fmt.Errorf("chat complete: %w", err)
	}

	s.bill(ctx, c, meter.Event{
		Identity:    c.Identity,
		DisplayName: c.DisplayName,
		Group:       c.Group,
		Kind:        meter.KindChatTokens,
		Tokens:      int64(completion.TotalTokens),
	})
	return completion, nil
}

// Transcribe relays an audio transcription and bills its duration.
func (s *Service) Transcribe(ctx context.Context, c Caller, audio domain.AudioInput) (domain.Transcript, error) {
	if s.providers.Transcriber == nil {
		return domain.Transcript{}, fmt.Errorf("transcription relay: %w", domain.ErrNotImplemented)
	}
	if audio.Reader == nil {
		return domain.Transcript{}, fmt.Errorf("empty audio: %w", domain.ErrInvalidInput)
	}
	if err := s.admit(ctx, c); err != nil {
		return domain.Transcript{}, err
	}

	transcript, err := s.providers.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}

	s.bill(ctx, c, meter.Event{
		Identity:    c.Identity,
		DisplayName: c.DisplayName,
		Group:       c.Group,
		Kind:        meter.KindTranscriptionSeconds,
		Seconds:     transcript.DurationSeconds,
	})
	return transcript, nil
}

// GenerateImage relays an image generation and bills the requested tier.
// The size is validated before the gate so an unknown tier never counts
// as a rejection.
func (s *Service) GenerateImage(ctx context.Context, c Caller, prompt, size string) (domain.GeneratedImage, error) {
	if s.providers.Images == nil {
		return domain.GeneratedImage{}, fmt.Errorf("image relay: %w", domain.ErrNotImplemented)
	}
	if size == "" {
		size = s.defaultImageSize
	}
	if _, err := pricing.ParseTier(size); err != nil {
		return domain.GeneratedImage{}, err
	}
	if prompt == "" {
		return domain.GeneratedImage{}, fmt.Errorf("empty prompt: %w", domain.ErrInvalidInput)
	}
	if err := s.admit(ctx, c); err != nil {
		return domain.GeneratedImage{}, err
	}

	img, err := s.providers.Images.GenerateImage(ctx, prompt, size)
	if err != nil {
		return domain.GeneratedImage{}, fmt.Errorf("generate image: %w", err)
	}

	s.bill(ctx, c, meter.Event{
		Identity:    c.Identity,
		DisplayName: c.DisplayName,
		Group:       c.Group,
		Kind:        meter.KindImage,
		Size:        size,
	})
	return img, nil
}
