package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
	"github.com/Aafreen2203/SafePostAI/internal/hf"
	"github.com/Aafreen2203/SafePostAI/internal/llm"
	"github.com/Aafreen2203/SafePostAI/internal/ocr"
)

// Credential names understood by CredentialBuilder.
const (
	CredOpenAI       = "openai"
	CredAnthropic    = "anthropic"
	CredGemini       = "gemini"
	CredHuggingFace  = "huggingface"
	CredGoogleVision = "google_vision"
	CredOCRSpace     = "ocr_space"
)

// CredentialNames lists every credential the builder reads.
var CredentialNames = []string{CredOpenAI, CredAnthropic, CredGemini, CredHuggingFace, CredGoogleVision, CredOCRSpace}

// Remotes are the remote collaborators available to one call. Adapters are
// always non-nil; an adapter without a credential returns
// analyzer.ErrAnalyzerUnavailable. Sentiment and the image collaborators are
// nil when absent.
type Remotes struct {
	LanguageModel analyzer.Adapter
	Entities      analyzer.Adapter
	Toxicity      analyzer.Adapter
	Policy        analyzer.Adapter
	Sentiment     analyzer.SentimentScorer

	OCR     analyzer.OCR
	Objects analyzer.ObjectDetector
	Faces   analyzer.FaceDetector

	closers []func() error
}

// Close releases clients that hold connections.
func (r *Remotes) Close() {
	for _, c := range r.closers {
		if err := c(); err != nil {
			log.Debug().Err(err).Msg("closing remote client")
		}
	}
}

// RemoteBuilder builds the remote collaborators for one call from its
// credential snapshot.
type RemoteBuilder interface {
	Build(ctx context.Context, creds map[string]string) *Remotes
}

// RemoteOptions are the non-secret settings of the remote services.
type RemoteOptions struct {
	LLMProvider        string // openai, anthropic, gemini, ollama, huggingface
	LLMModel           string
	VisionModel        string // OpenAI model used for face counting
	OllamaBaseURL      string
	HuggingFaceBaseURL string
	HuggingFaceModels  hf.Models
	OCRProvider        string // vision, ocrspace, or "" for whichever has a key
	VisionOptions      []option.ClientOption
	OCRSpaceURL        string
}

// CredentialBuilder is the production RemoteBuilder.
type CredentialBuilder struct {
	opts RemoteOptions
}

// NewCredentialBuilder creates a builder. An empty LLMProvider means openai.
func NewCredentialBuilder(opts RemoteOptions) *CredentialBuilder {
	if opts.LLMProvider == "" {
		opts.LLMProvider = "openai"
	}
	if opts.LLMModel == "" {
		opts.LLMModel = llm.DefaultModel(opts.LLMProvider)
	}
	if opts.VisionModel == "" {
		opts.VisionModel = "gpt-4o-mini"
	}
	return &CredentialBuilder{opts: opts}
}

func (b *CredentialBuilder) Build(ctx context.Context, creds map[string]string) *Remotes {
	r := &Remotes{}
	b.buildLanguageModel(ctx, creds, r)
	hfClient := b.buildHuggingFace(creds, r)
	b.buildImage(ctx, creds, hfClient, r)
	return r
}

func (b *CredentialBuilder) buildLanguageModel(ctx context.Context, creds map[string]string, r *Remotes) {
	baseURL := ""
	switch b.opts.LLMProvider {
	case "ollama":
		baseURL = b.opts.OllamaBaseURL
	case "huggingface":
		baseURL = b.opts.HuggingFaceBaseURL
	}
	provider, err := llm.NewProvider(ctx, llm.ProviderConfig{
		Name:    b.opts.LLMProvider,
		APIKey:  creds[b.opts.LLMProvider],
		BaseURL: baseURL,
	})
	if err != nil {
		if !errors.Is(err, llm.ErrProviderNotAvailable) {
			log.Warn().Err(err).Str("provider", b.opts.LLMProvider).Msg("language model provider not built")
		}
		r.LanguageModel = analyzer.NewPromptAdapter(nil, "")
		return
	}
	if c, ok := provider.(interface{ Close() error }); ok {
		r.closers = append(r.closers, c.Close)
	}
	r.LanguageModel = analyzer.NewPromptAdapter(provider, b.opts.LLMModel)
}

func (b *CredentialBuilder) buildHuggingFace(creds map[string]string, r *Remotes) *hf.Client {
	client, err := hf.NewClient(creds[CredHuggingFace],
		hf.WithBaseURL(b.opts.HuggingFaceBaseURL),
		hf.WithModels(b.opts.HuggingFaceModels),
	)
	if err != nil {
		r.Entities = analyzer.NewEntityAdapter(nil)
		r.Toxicity = analyzer.NewToxicityAdapter(nil)
		r.Policy = analyzer.NewPolicyAdapter(nil)
		return nil
	}
	r.Entities = analyzer.NewEntityAdapter(client)
	r.Toxicity = analyzer.NewToxicityAdapter(client.Toxicity())
	r.Policy = analyzer.NewPolicyAdapter(client.ZeroShot())
	r.Sentiment = client
	r.Objects = client
	return client
}

// buildImage wires OCR and detectors. Faces are counted by Google Vision,
// then the OpenAI vision model, then HuggingFace, whichever answers first.
func (b *CredentialBuilder) buildImage(ctx context.Context, creds map[string]string, hfClient *hf.Client, r *Remotes) {
	var faces []analyzer.FaceDetector
	useVision := b.opts.OCRProvider == "" || b.opts.OCRProvider == "vision"
	if key := creds[CredGoogleVision]; key != "" && useVision {
		v, err := ocr.NewVisionClient(ctx, key, b.opts.VisionOptions...)
		if err != nil {
			log.Warn().Err(err).Msg("google vision client not built")
		} else {
			r.OCR = v
			r.Objects = v
			faces = append(faces, v)
		}
	}
	if r.OCR == nil && b.opts.OCRProvider != "vision" {
		if s, err := ocr.NewSpaceClient(creds[CredOCRSpace], b.opts.OCRSpaceURL); err == nil {
			r.OCR = s
		}
	}
	if creds[CredOpenAI] != "" {
		faces = append(faces, analyzer.NewVisionFaceDetector(llm.NewOpenAIProvider(creds[CredOpenAI]), b.opts.VisionModel))
	}
	if hfClient != nil {
		faces = append(faces, hfClient)
	}
	r.Faces = analyzer.FallbackFaces(faces...)
}

// StaticRemotes returns the same collaborators for every call. Tests and
// embedders that wire their own clients use it.
type StaticRemotes Remotes

func (s *StaticRemotes) Build(context.Context, map[string]string) *Remotes {
	r := Remotes(*s)
	r.closers = nil
	if r.LanguageModel == nil {
		r.LanguageModel = analyzer.NewPromptAdapter(nil, "")
	}
	if r.Entities == nil {
		r.Entities = analyzer.NewEntityAdapter(nil)
	}
	if r.Toxicity == nil {
		r.Toxicity = analyzer.NewToxicityAdapter(nil)
	}
	if r.Policy == nil {
		r.Policy = analyzer.NewPolicyAdapter(nil)
	}
	return &r
}
