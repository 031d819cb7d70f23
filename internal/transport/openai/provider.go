package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/metrics"
)

// Provider relays chat, transcription and image requests to the
// OpenAI-compatible API (e.g. Nebius).
type Provider struct {
	client             *openai.Client
	chatModel          string
	transcriptionModel string
	imageModel         string
	user               string
	logger             *zap.Logger
}

// Config holds the model provider settings.
type Config struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	ImageModel         string
	User               string
	Logger             *zap.Logger
}

// NewProvider creates an OpenAI-compatible model provider.
func NewProvider(cfg *Config) *Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:             openai.NewClientWithConfig(clientCfg),
		chatModel:          cfg.ChatModel,
		transcriptionModel: cfg.TranscriptionModel,
		imageModel:         cfg.ImageModel,
		user:               cfg.User,
		logger:             cfg.Logger,
	}
}

// Complete implements domain.ChatCompleter with transport-level metrics.
func (p *Provider) Complete(ctx context.Context, messages []domain.ChatMessage) (domain.ChatCompletion, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		User:     p.user,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()

	resp, err := p.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("chat", p.chatModel, "error").Inc()
		return domain.ChatCompletion{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues("chat", p.chatModel, "error").Inc()
		return domain.ChatCompletion{}, fmt.Errorf("empty completion response: %w", domain.ErrProviderError)
	}

	metrics.ProviderRequestsTotal.WithLabelValues("chat", p.chatModel, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues("chat", p.chatModel).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(p.chatModel, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.ProviderTokensTotal.WithLabelValues(p.chatModel, "completion").Add(float64(resp.Usage.CompletionTokens))
		metrics.ProviderTokensTotal.WithLabelValues(p.chatModel, "total").Add(float64(resp.Usage.TotalTokens))
	}

	return domain.ChatCompletion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// Transcribe implements domain.AudioTranscriber. The verbose response
// format carries the audio duration the billing chain charges for.
func (p *Provider) Transcribe(ctx context.Context, audio domain.AudioInput) (domain.Transcript, error) {
	req := openai.AudioRequest{
		Model:    p.transcriptionModel,
		Reader:   audio.Reader,
		FilePath: audio.FileName,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	start := time.Now()

	resp, err := p.client.CreateTranscription(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("transcription", p.transcriptionModel, "error").Inc()
		return domain.Transcript{}, parseAPIError(err)
	}

	metrics.ProviderRequestsTotal.WithLabelValues("transcription", p.transcriptionModel, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues("transcription", p.transcriptionModel).Observe(duration.Seconds())

	return domain.Transcript{
		Text:            resp.Text,
		DurationSeconds: resp.Duration,
	}, nil
}

// GenerateImage implements domain.ImageGenerator.
func (p *Provider) GenerateImage(ctx context.Context, prompt, size string) (domain.GeneratedImage, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.imageModel,
		Size:           size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
		User:           p.user,
	}

	start := time.Now()

	resp, err := p.client.CreateImage(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("image", p.imageModel, "error").Inc()
		return domain.GeneratedImage{}, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues("image", p.imageModel, "error").Inc()
		return domain.GeneratedImage{}, fmt.Errorf("empty image response: %w", domain.ErrProviderError)
	}

	metrics.ProviderRequestsTotal.WithLabelValues("image", p.imageModel, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues("image", p.imageModel).Observe(duration.Seconds())

	return domain.GeneratedImage{URL: resp.Data[0].URL}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrProviderError for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("provider API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("provider API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("provider API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("provider request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
