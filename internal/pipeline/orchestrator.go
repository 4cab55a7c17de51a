// Package pipeline is the analysis orchestrator: it runs the local detectors
// and the remote analyzers for one post and merges their findings into a
// single report.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
	"github.com/Aafreen2203/SafePostAI/internal/classifier"
	"github.com/Aafreen2203/SafePostAI/internal/content"
	"github.com/Aafreen2203/SafePostAI/internal/imagescan"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/requestctx"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/pipeline")

// DefaultAdapterTimeout bounds one remote analyzer call.
const DefaultAdapterTimeout = 15 * time.Second

// Result slots. Findings are aggregated in this order whatever order the
// analyzers finish in.
const (
	slotPattern = iota
	slotDocument
	slotChain
	slotToxicity
	slotPolicy
	slotCount
)

// Outcomes recorded per analyzer call.
const (
	outcomeOK          = "ok"
	outcomeUnavailable = "unavailable"
	outcomeFailure     = "failure"
)

// Orchestrator runs analyses. It holds only read-only collaborators, so one
// Orchestrator serves concurrent calls.
type Orchestrator struct {
	patterns  analyzer.Adapter
	documents analyzer.Adapter
	remotes   RemoteBuilder
	timeout   time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPatterns replaces the pattern library adapter.
func WithPatterns(a analyzer.Adapter) Option { return func(o *Orchestrator) { o.patterns = a } }

// WithDocuments replaces the document classifier adapter.
func WithDocuments(a analyzer.Adapter) Option { return func(o *Orchestrator) { o.documents = a } }

// WithRemotes sets how remote collaborators are built per call.
func WithRemotes(b RemoteBuilder) Option { return func(o *Orchestrator) { o.remotes = b } }

// WithAdapterTimeout bounds each remote analyzer call.
func WithAdapterTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// New creates an Orchestrator. Without options it runs the embedded pattern
// library and document classifier and has no remote analyzers.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{timeout: DefaultAdapterTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.patterns == nil {
		o.patterns = analyzer.NewPatternAdapter(classifier.MustNewScanner())
	}
	if o.documents == nil {
		o.documents = analyzer.NewDocumentAdapter(classifier.MustNewDocumentClassifier())
	}
	if o.remotes == nil {
		o.remotes = &StaticRemotes{}
	}
	return o
}

func aggregatorFor(cfg AnalysisConfig) *risk.Aggregator {
	return risk.NewAggregator(
		risk.WithSeverityFloor(cfg.SeverityFloor),
		risk.WithEnabledClasses(cfg.EnabledCategories),
	)
}

// AnalyzeText analyzes one post. It never fails: analyzer errors degrade the
// report to whatever the remaining analyzers found.
func (o *Orchestrator) AnalyzeText(ctx context.Context, text string, cfg AnalysisConfig) *risk.Report {
	ctx, span := tracer.Start(ctx, "pipeline.analyze_text")
	defer span.End()

	snap := cfg.Snapshot()
	normalized := content.NormalizeText(text)
	span.SetAttributes(spotel.InputLength.Int(len(normalized)))
	if content.IsBlank(normalized) {
		return risk.EmptyReport(text)
	}

	remotes := o.remotes.Build(ctx, snap.Credentials)
	defer remotes.Close()

	sentiment := o.startSentiment(ctx, normalized, snap, remotes)
	sets := o.collect(ctx, normalized, snap, remotes)
	report := aggregatorFor(snap).Aggregate(ctx, normalized, sets...)
	report.Sentiment = sentiment()
	spotel.RecordScan(ctx, "text", report.OverallSeverity.String())
	return report
}

// AnalyzeImage runs OCR, object and face detection on an image and analyzes
// any extracted text exactly like a post.
func (o *Orchestrator) AnalyzeImage(ctx context.Context, img []byte, cfg AnalysisConfig) *risk.Report {
	ctx, span := tracer.Start(ctx, "pipeline.analyze_image")
	defer span.End()

	snap := cfg.Snapshot()
	if len(img) == 0 {
		return risk.EmptyReport("")
	}

	remotes := o.remotes.Build(ctx, snap.Credentials)
	defer remotes.Close()

	opts := []imagescan.Option{
		imagescan.WithAggregator(aggregatorFor(snap)),
		imagescan.WithTimeout(o.timeout),
		imagescan.WithTextAnalyzer(func(ctx context.Context, text string) [][]risk.Finding {
			return o.collect(ctx, text, snap, remotes)
		}),
	}
	if remotes.OCR != nil {
		opts = append(opts, imagescan.WithOCR(remotes.OCR))
	}
	if remotes.Objects != nil && snap.Enabled(risk.ClassDocument) {
		opts = append(opts, imagescan.WithObjectDetector(remotes.Objects))
	}
	if remotes.Faces != nil && snap.Enabled(risk.ClassFaceDetected) {
		opts = append(opts, imagescan.WithFaceDetector(remotes.Faces))
	}

	report := imagescan.New(opts...).AnalyzeImage(ctx, img)
	spotel.RecordScan(ctx, "image", report.OverallSeverity.String())
	return report
}

// collect runs every analyzer for text and returns their findings by slot.
// The accumulator belongs to this call alone.
func (o *Orchestrator) collect(ctx context.Context, text string, cfg AnalysisConfig, remotes *Remotes) [][]risk.Finding {
	results := make([][]risk.Finding, slotCount)
	var wg sync.WaitGroup
	launch := func(slot int, fn func(context.Context) []risk.Finding) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[slot] = fn(ctx)
		}()
	}

	launch(slotPattern, func(ctx context.Context) []risk.Finding {
		f, _ := o.invoke(ctx, o.patterns, text, false)
		return f
	})
	if cfg.Enabled(risk.ClassDocument) {
		launch(slotDocument, func(ctx context.Context) []risk.Finding {
			f, _ := o.invoke(ctx, o.documents, text, false)
			return f
		})
	}
	// Pattern-only mode skips every remote analyzer.
	if cfg.PreferredRemoteProvider == RemoteNone {
		wg.Wait()
		return results
	}
	if chain := remoteChain(cfg.PreferredRemoteProvider, remotes); len(chain) > 0 {
		launch(slotChain, func(ctx context.Context) []risk.Finding {
			return o.runChain(ctx, chain, text)
		})
	}
	if cfg.Enabled(risk.ClassToxicity) {
		launch(slotToxicity, func(ctx context.Context) []risk.Finding {
			f, _ := o.invoke(ctx, remotes.Toxicity, text, true)
			return f
		})
	}
	if cfg.Enabled(risk.ClassPolicyViolation) {
		launch(slotPolicy, func(ctx context.Context) []risk.Finding {
			f, _ := o.invoke(ctx, remotes.Policy, text, true)
			return f
		})
	}
	wg.Wait()
	return results
}

// startSentiment scores the tone of text alongside the detectors. The returned
// func waits for the answer; a failed or skipped call yields nil.
func (o *Orchestrator) startSentiment(ctx context.Context, text string, cfg AnalysisConfig, remotes *Remotes) func() *risk.Sentiment {
	if cfg.PreferredRemoteProvider == RemoteNone || remotes.Sentiment == nil {
		return func() *risk.Sentiment { return nil }
	}
	done := make(chan *risk.Sentiment, 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		start := time.Now()
		label, err := remotes.Sentiment.Sentiment(ctx, text)
		if err != nil {
			spotel.RecordAnalyzer(ctx, "sentiment", outcomeFailure, time.Since(start))
			log.Warn().Err(err).Str("request_id", requestctx.RequestID(ctx)).Msg("sentiment analysis failed")
			done <- nil
			return
		}
		spotel.RecordAnalyzer(ctx, "sentiment", outcomeOK, time.Since(start))
		done <- &risk.Sentiment{Label: label.Label, Score: label.Score}
	}()
	return func() *risk.Sentiment { return <-done }
}

// remoteChain orders the remote PII analyzers: the preferred one first, the
// other as its fallback.
func remoteChain(pref RemoteProvider, r *Remotes) []analyzer.Adapter {
	switch pref {
	case RemoteLanguageModel:
		return []analyzer.Adapter{r.LanguageModel, r.Entities}
	case RemoteEntityService:
		return []analyzer.Adapter{r.Entities, r.LanguageModel}
	}
	return nil
}

// runChain returns the findings of the first adapter that succeeds.
func (o *Orchestrator) runChain(ctx context.Context, chain []analyzer.Adapter, text string) []risk.Finding {
	for _, a := range chain {
		findings, err := o.invoke(ctx, a, text, true)
		if err == nil {
			return findings
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// invoke runs one adapter inside its own span and, for remote adapters, its
// own timeout. Errors are logged here and returned only so the chain can
// decide whether to fall through.
func (o *Orchestrator) invoke(ctx context.Context, a analyzer.Adapter, text string, remote bool) ([]risk.Finding, error) {
	ctx, span := tracer.Start(ctx, "pipeline.adapter")
	defer span.End()
	span.SetAttributes(spotel.AnalyzerName.String(a.Name()), spotel.AnalyzerSource.String(string(a.Source())))

	if remote {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	findings, err := a.Analyze(ctx, text)
	elapsed := time.Since(start)

	outcome := outcomeOK
	switch {
	case err == nil:
		log.Debug().
			Str("adapter", a.Name()).
			Str("source", string(a.Source())).
			Int("findings", len(findings)).
			Dur("elapsed", elapsed).
			Str("request_id", requestctx.RequestID(ctx)).
			Func(spotel.LogTraceFields(ctx)).
			Msg("analyzer finished")
	case errors.Is(err, analyzer.ErrAnalyzerUnavailable):
		outcome = outcomeUnavailable
		log.Debug().Str("adapter", a.Name()).Str("request_id", requestctx.RequestID(ctx)).Msg("analyzer not configured")
	default:
		outcome = outcomeFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyzer failed")
		log.Warn().
			Err(err).
			Str("adapter", a.Name()).
			Str("source", string(a.Source())).
			Dur("elapsed", elapsed).
			Str("request_id", requestctx.RequestID(ctx)).
			Func(spotel.LogTraceFields(ctx)).
			Msg("analyzer failed, falling back")
	}
	span.SetAttributes(spotel.AnalyzerOutcome.String(outcome), spotel.AnalyzerFindings.Int(len(findings)))
	spotel.RecordAnalyzer(ctx, a.Name(), outcome, elapsed)

	if err != nil {
		return nil, err
	}
	return findings, nil
}
