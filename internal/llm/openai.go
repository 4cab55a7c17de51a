package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/llm")

// OpenAIProvider implements Provider for the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider for a compatible
// endpoint or a test server. baseURL may be given with or without /v1.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = NormalizeOpenAIBaseURL(baseURL)
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

func newOpenAIProviderWithClient(client *openai.Client) *OpenAIProvider {
	return &OpenAIProvider{client: client}
}

// NormalizeOpenAIBaseURL appends /v1 unless the URL already ends with it.
func NormalizeOpenAIBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request to OpenAI. Messages with images
// are sent as multi-part content.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(spotel.LLMRequestAttributes("openai", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		if len(msg.Images) == 0 {
			messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
			continue
		}
		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: msg.Content}}
		for _, img := range msg.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: img, Detail: openai.ImageURLDetailLow},
			})
		}
		messages[i] = openai.ChatCompletionMessage{Role: msg.Role, MultiContent: parts}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: %w", ErrEmptyResponse)
	}

	span.SetAttributes(spotel.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	span.SetAttributes(
		spotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)),
		spotel.GenAIResponseID.String(resp.ID),
	)

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}
