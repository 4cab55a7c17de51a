package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

// DefaultOllamaBaseURL is used when no base URL is configured.
const DefaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider implements Provider for local Ollama models.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates an Ollama provider pointing at baseURL, or at
// DefaultOllamaBaseURL when empty.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate sends a non-streaming chat request to Ollama. Image data URLs are
// passed as raw base64 for multimodal models.
func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(spotel.LLMRequestAttributes("ollama", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	messages := make([]ollamaMessage, len(req.Messages))
	for i, msg := range req.Messages {
		m := ollamaMessage{Role: msg.Role, Content: msg.Content}
		for _, img := range msg.Images {
			if _, b64, ok := strings.Cut(img, ","); ok {
				img = b64
			}
			m.Images = append(m.Images, img)
		}
		messages[i] = m
	}

	apiReq := ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var apiResp ollamaResponse
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/chat", nil, apiReq, &apiResp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ollama api call: %w", err)
	}

	span.SetAttributes(spotel.LLMUsageAttributes(apiResp.PromptEvalCount, apiResp.EvalCount)...)

	finish := apiResp.DoneReason
	if finish == "" {
		finish = "stop"
	}
	return &Response{
		Content:      apiResp.Message.Content,
		FinishReason: finish,
		InputTokens:  apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
		Model:        req.Model,
	}, nil
}
