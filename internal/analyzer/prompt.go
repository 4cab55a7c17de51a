package analyzer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Aafreen2203/SafePostAI/internal/llm"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

//go:embed prompt_schema.json
var promptSchema string

var promptSchemaLoader = gojsonschema.NewStringLoader(promptSchema)

const (
	promptTemperature = 0.1
	promptMaxTokens   = 500
	// defaultItemConfidence applies when the model omits a confidence.
	defaultItemConfidence = 0.9
)

const promptSystem = "You are a privacy and PII detection expert. Always respond with valid JSON only."

const promptInstruction = `Find every piece of potentially sensitive or personally identifiable information (PII) in the text below.

Sensitive content includes:
- Email addresses
- Phone numbers
- Full names of people
- Passwords or authentication tokens
- Credit card or bank information
- Home addresses or location details
- Government IDs (SSN, Aadhaar, PAN, passport numbers)
- IP addresses

Text to analyze:
"""
%s
"""

Return a JSON object with:
1. "sensitiveItems": array of objects with "type", "value", "confidence" (0-1) and "severity" ("low", "medium", "high" or "critical")
2. "riskLevel": "none", "low", "medium", "high" or "critical"
3. "explanation": one sentence

Only flag information that is actually present in the text.`

type promptItem struct {
	Type       string   `json:"type"`
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence"`
	Severity   string   `json:"severity"`
}

type promptResult struct {
	SensitiveItems []promptItem `json:"sensitiveItems"`
	RiskLevel      string       `json:"riskLevel"`
}

// PromptAdapter asks a language model to list sensitive items.
type PromptAdapter struct {
	provider llm.Provider
	model    string
}

// NewPromptAdapter creates the language-model adapter. A nil provider makes
// every call return ErrAnalyzerUnavailable.
func NewPromptAdapter(provider llm.Provider, model string) *PromptAdapter {
	return &PromptAdapter{provider: provider, model: model}
}

func (a *PromptAdapter) Name() string {
	if a.provider == nil {
		return "llm"
	}
	return "llm:" + a.provider.Name()
}

func (a *PromptAdapter) Source() risk.Source { return risk.SourceLanguageModel }

func (a *PromptAdapter) Analyze(ctx context.Context, text string) ([]risk.Finding, error) {
	if a.provider == nil {
		return nil, ErrAnalyzerUnavailable
	}
	ctx, span := tracer.Start(ctx, "analyzer.prompt")
	defer span.End()

	req := &llm.Request{
		Model:       a.model,
		Temperature: promptTemperature,
		MaxTokens:   promptMaxTokens,
		Messages: []llm.Message{
			{Role: "system", Content: promptSystem},
			{Role: "user", Content: fmt.Sprintf(promptInstruction, text)},
		},
	}
	span.SetAttributes(spotel.LLMRequestAttributes(a.provider.Name(), a.model, req.Temperature, req.MaxTokens)...)

	resp, err := a.provider.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, failure(a.Name(), err)
	}
	span.SetAttributes(spotel.LLMUsageAttributes(resp.InputTokens, resp.OutputTokens)...)

	findings, err := ParsePromptResponse(resp.Content)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}
	span.SetAttributes(spotel.AnalyzerFindings.Int(len(findings)))
	return findings, nil
}

// ParsePromptResponse turns raw model output into findings. It fails with
// ErrMalformedResponse when no valid object can be recovered.
func ParsePromptResponse(raw string) ([]risk.Finding, error) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in model output", ErrMalformedResponse)
	}
	result, err := gojsonschema.Validate(promptSchemaLoader, gojsonschema.NewBytesLoader(obj))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(msgs, "; "))
	}

	var parsed promptResult
	if err := json.Unmarshal(obj, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	findings := make([]risk.Finding, 0, len(parsed.SensitiveItems))
	for _, item := range parsed.SensitiveItems {
		value := strings.TrimSpace(item.Value)
		if value == "" {
			continue
		}
		conf := defaultItemConfidence
		if item.Confidence != nil {
			conf = *item.Confidence
		}
		rating, _ := risk.ParseSeverity(item.Severity)
		f := risk.NewRatedFinding(PromptCategory(item.Type), value, conf, risk.SourceLanguageModel, rating)
		findings = append(findings, f)
	}
	return findings, nil
}

var promptTypes = map[string]risk.Category{
	"email":           risk.Cat(risk.ClassEmail, ""),
	"email_address":   risk.Cat(risk.ClassEmail, ""),
	"phone":           risk.Cat(risk.ClassPhone, ""),
	"phone_number":    risk.Cat(risk.ClassPhone, ""),
	"mobile":          risk.Cat(risk.ClassPhone, ""),
	"name":            risk.Cat(risk.ClassPersonName, ""),
	"full_name":       risk.Cat(risk.ClassPersonName, ""),
	"person":          risk.Cat(risk.ClassPersonName, ""),
	"person_name":     risk.Cat(risk.ClassPersonName, ""),
	"address":         risk.Cat(risk.ClassAddress, ""),
	"home_address":    risk.Cat(risk.ClassAddress, ""),
	"location":        risk.Cat(risk.ClassAddress, ""),
	"ip":              risk.Cat(risk.ClassIPAddress, ""),
	"ip_address":      risk.Cat(risk.ClassIPAddress, ""),
	"credit_card":     risk.Cat(risk.ClassCreditCard, ""),
	"card_number":     risk.Cat(risk.ClassCreditCard, ""),
	"bank_account":    risk.Cat(risk.ClassCreditCard, "bank_account"),
	"ssn":             risk.Cat(risk.ClassNationalID, "ssn"),
	"aadhaar":         risk.Cat(risk.ClassNationalID, "aadhaar"),
	"pan":             risk.Cat(risk.ClassNationalID, "pan"),
	"passport":        risk.Cat(risk.ClassNationalID, "passport"),
	"government_id":   risk.Cat(risk.ClassNationalID, ""),
	"national_id":     risk.Cat(risk.ClassNationalID, ""),
	"password":        risk.Cat(risk.ClassEntity, "credential"),
	"api_key":         risk.Cat(risk.ClassEntity, "credential"),
	"token":           risk.Cat(risk.ClassEntity, "credential"),
	"postal_code":     risk.Cat(risk.ClassAddress, "postal_code"),
	"pin_code":        risk.Cat(risk.ClassAddress, "postal_code"),
	"organization":    risk.Cat(risk.ClassEntity, "organization"),
	"organisation":    risk.Cat(risk.ClassEntity, "organization"),
	"date_of_birth":   risk.Cat(risk.ClassEntity, "date_of_birth"),
	"driving_license": risk.Cat(risk.ClassNationalID, "driving_license"),
	"drivers_license": risk.Cat(risk.ClassNationalID, "driving_license"),
	"license_number":  risk.Cat(risk.ClassNationalID, "driving_license"),
}

// PromptCategory maps a model-reported item type onto a category. Unknown
// types become entity/<type>.
func PromptCategory(kind string) risk.Category {
	key := strings.ToLower(strings.TrimSpace(kind))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if c, ok := promptTypes[key]; ok {
		return c
	}
	if key == "" {
		key = "unknown"
	}
	return risk.Cat(risk.ClassEntity, key)
}

var _ Adapter = (*PromptAdapter)(nil)
