package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

// AnthropicProvider implements Provider for the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewAnthropicProvider creates an Anthropic provider with the given API key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return NewAnthropicProviderWithBaseURL(apiKey, "https://api.anthropic.com")
}

// NewAnthropicProviderWithBaseURL points the provider at another host.
func NewAnthropicProviderWithBaseURL(apiKey, baseURL string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate sends a completion request to Anthropic. System messages are
// joined into the top-level system field.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(spotel.LLMRequestAttributes("anthropic", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	if hasImages(req.Messages) {
		return nil, fmt.Errorf("anthropic: %w", ErrImagesUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	var systemParts []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	var apiResp anthropicResponse
	err := postJSON(ctx, p.httpClient, p.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}, anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      strings.Join(systemParts, "\n\n"),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}, &apiResp)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("anthropic api call: %w", err)
	}

	span.SetAttributes(spotel.LLMUsageAttributes(apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens)...)
	span.SetAttributes(
		spotel.GenAIResponseFinishReason.String(apiResp.StopReason),
		spotel.GenAIResponseID.String(apiResp.ID),
	)

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Response{
		Content:      content.String(),
		FinishReason: apiResp.StopReason,
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
		Model:        req.Model,
	}, nil
}
