package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic convention keys for model calls.
const (
	GenAISystem               = attribute.Key("gen_ai.system")
	GenAIRequestModel         = attribute.Key("gen_ai.request.model")
	GenAIRequestTemperature   = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens     = attribute.Key("gen_ai.request.max_tokens")
	GenAIUsageInputTokens     = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens    = attribute.Key("gen_ai.usage.output_tokens")
	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
	GenAIResponseID           = attribute.Key("gen_ai.response.id")
)

// Analyzer span keys.
const (
	AnalyzerName     = attribute.Key("safepost.analyzer.name")
	AnalyzerSource   = attribute.Key("safepost.analyzer.source")
	AnalyzerFindings = attribute.Key("safepost.analyzer.findings")
	AnalyzerOutcome  = attribute.Key("safepost.analyzer.outcome")
	InputLength      = attribute.Key("safepost.input.length")
)

// LLMRequestAttributes returns the standard attributes for a model request.
func LLMRequestAttributes(system, model string, temperature float64, maxTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
		GenAIRequestMaxTokens.Int(maxTokens),
	}
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}
