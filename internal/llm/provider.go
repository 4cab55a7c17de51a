// Package llm contains the prompt-completion clients used by the
// language-model analyzer: OpenAI, Anthropic, Gemini, Ollama, and the
// HuggingFace text-generation endpoint.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds a single completion call.
const TimeoutLLMCall = 60 * time.Second

// Domain errors for the LLM package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrUnknownProvider      = errors.New("unknown llm provider")
	ErrEmptyResponse        = errors.New("empty completion")
	ErrImagesUnsupported    = errors.New("provider does not accept images")
)

// Provider is a prompt-completion service.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "gemini").
	Name() string
	// Generate sends a completion request and returns the raw response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message is one chat message. Images holds data URLs
// ("data:image/png;base64,...") for providers with vision support.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
	Images  []string
}

// Response is a completion response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

func hasImages(msgs []Message) bool {
	for _, m := range msgs {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}
