package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider implements Provider for Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini client. Extra client options (e.g. an
// endpoint for tests) are appended after the API key.
func NewGeminiProvider(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Generate sends the conversation to Gemini. System messages become the
// system instruction; the last user message is sent, earlier ones are history.
func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(spotel.LLMRequestAttributes("gemini", modelName, req.Temperature, req.MaxTokens)...))
	defer span.End()

	if hasImages(req.Messages) {
		return nil, fmt.Errorf("gemini: %w", ErrImagesUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	model := p.client.GenerativeModel(modelName)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	var system []string
	var history []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant":
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("gemini: no user message")
	}

	session := model.StartChat()
	session.History = history[:len(history)-1]
	resp, err := session.SendMessage(ctx, history[len(history)-1].Parts...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("gemini api call: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini api call: %w", ErrEmptyResponse)
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &Response{
		Content:      text.String(),
		FinishReason: strings.ToLower(cand.FinishReason.String()),
		Model:        modelName,
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		span.SetAttributes(spotel.LLMUsageAttributes(out.InputTokens, out.OutputTokens)...)
	}
	return out, nil
}
