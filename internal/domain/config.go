package domain

// KeyPrefix namespaces every key the service writes to its key-value store.
const KeyPrefix = "vbot:"

// ModelConfig holds internal model routing settings, not exposed to clients.
type ModelConfig struct {
	ChatModel          string
	TranscriptionModel string
	ImageModel         string
}

// DefaultModelConfig returns the default model routing for the relay.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		ChatModel:          "gpt-3.5-turbo",
		TranscriptionModel: "whisper-1",
		ImageModel:         "dall-e-2",
	}
}
