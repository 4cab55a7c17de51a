// Package scan is the application layer around the analysis orchestrator.
//
// A Service resolves provider credentials from the credential store, serves
// repeated inputs from the report cache, runs the orchestrator, evaluates the
// verdict policy, appends the outcome to the scan history, and announces it on
// the event bus. Only the analysis itself is required; every other
// collaborator degrades to a no-op when absent or failing.
package scan

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Aafreen2203/SafePostAI/internal/cache"
	"github.com/Aafreen2203/SafePostAI/internal/content"
	"github.com/Aafreen2203/SafePostAI/internal/events"
	"github.com/Aafreen2203/SafePostAI/internal/history"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/pipeline"
	"github.com/Aafreen2203/SafePostAI/internal/requestctx"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
	"github.com/Aafreen2203/SafePostAI/internal/verdict"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/scan")

// Kinds of scan.
const (
	KindText  = "text"
	KindImage = "image"
)

// Analyzer is the orchestrator surface the service needs.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string, cfg pipeline.AnalysisConfig) *risk.Report
	AnalyzeImage(ctx context.Context, img []byte, cfg pipeline.AnalysisConfig) *risk.Report
}

// Credentials returns the stored secrets among names. Missing names are
// simply absent from the map.
type Credentials interface {
	GetMany(ctx context.Context, names []string) (map[string]string, error)
}

// Recorder appends finished scans to the history.
type Recorder interface {
	Save(ctx context.Context, rec *history.Record) error
}

// Result is the outcome of one scan.
type Result struct {
	Report  *risk.Report     `json:"report"`
	Verdict *verdict.Verdict `json:"verdict"`
	Cached  bool             `json:"cached"`
}

// Service runs scans end to end.
type Service struct {
	analyzer Analyzer
	verdicts *verdict.Engine
	settings pipeline.AnalysisConfig
	creds    Credentials
	history  Recorder
	cache    cache.Cache
	events   events.Publisher
	images   *content.ImageDecoder
}

// Option configures a Service.
type Option func(*Service)

// WithCredentials resolves provider keys from c on every scan.
func WithCredentials(c Credentials) Option { return func(s *Service) { s.creds = c } }

// WithHistory records every scan.
func WithHistory(r Recorder) Option { return func(s *Service) { s.history = r } }

// WithCache serves repeated inputs from c.
func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

// WithEvents publishes every scan.
func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithImageDecoder sets the decoder used for encoded images.
func WithImageDecoder(d *content.ImageDecoder) Option { return func(s *Service) { s.images = d } }

// NewService creates a Service. settings carries everything but credentials.
func NewService(a Analyzer, v *verdict.Engine, settings pipeline.AnalysisConfig, opts ...Option) *Service {
	s := &Service{
		analyzer: a,
		verdicts: v,
		settings: settings,
		cache:    cache.Nop{},
		events:   events.Nop{},
		images:   content.NewImageDecoder(content.DefaultMaxImageMB),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// analysisConfig returns the settings with the current credentials.
func (s *Service) analysisConfig(ctx context.Context) pipeline.AnalysisConfig {
	cfg := s.settings.Snapshot()
	cfg.Credentials = map[string]string{}
	if s.creds == nil {
		return cfg
	}
	creds, err := s.creds.GetMany(ctx, pipeline.CredentialNames)
	if err != nil {
		// Without credentials every remote analyzer reports itself unavailable.
		log.Warn().Err(err).Msg("credential_lookup_failed")
		return cfg
	}
	cfg.Credentials = creds
	return cfg
}

// ScanText analyzes one post.
func (s *Service) ScanText(ctx context.Context, text string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "scan.text")
	defer span.End()

	cfg := s.analysisConfig(ctx)
	key := cache.Key(KindText, text, cfg.Fingerprint())
	return s.run(ctx, KindText, key, func() *risk.Report {
		return s.analyzer.AnalyzeText(ctx, text, cfg)
	})
}

// ScanImage decodes a base64 or data-URL image and analyzes it.
func (s *Service) ScanImage(ctx context.Context, encoded string) (*Result, error) {
	img, _, err := s.images.Decode(ctx, encoded)
	if err != nil {
		return nil, err
	}
	return s.ScanImageBytes(ctx, img)
}

// ScanImageBytes analyzes raw image bytes.
func (s *Service) ScanImageBytes(ctx context.Context, img []byte) (*Result, error) {
	ctx, span := tracer.Start(ctx, "scan.image")
	defer span.End()

	cfg := s.analysisConfig(ctx)
	key := cache.Key(KindImage, base64.StdEncoding.EncodeToString(img), cfg.Fingerprint())
	return s.run(ctx, KindImage, key, func() *risk.Report {
		return s.analyzer.AnalyzeImage(ctx, img, cfg)
	})
}

func (s *Service) run(ctx context.Context, kind, key string, analyze func() *risk.Report) (*Result, error) {
	report, cached := s.lookup(ctx, key)
	if !cached {
		report = analyze()
		if cacheable(report) {
			if err := s.cache.Set(ctx, key, report); err != nil {
				log.Warn().Err(err).Msg("report_cache_write_failed")
			}
		}
	}

	v, err := s.verdicts.Evaluate(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("evaluating verdict: %w", err)
	}

	if s.history != nil {
		rec := history.FromReport(kind, report, v.Action, v.Score, v.ScoreLevel)
		if err := s.history.Save(ctx, rec); err != nil {
			log.Error().Err(err).Str("report_id", report.ID).Msg("history_save_failed")
		}
	}

	ev := events.NewScanEvent(kind, report, v.Action)
	ev.Cached = cached
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("report_id", report.ID).Msg("scan_event_publish_failed")
	}

	log.Info().
		Str("request_id", requestctx.RequestID(ctx)).
		Str("report_id", report.ID).
		Str("kind", kind).
		Str("severity", report.OverallSeverity.String()).
		Str("verdict", v.Action).
		Int("findings", len(report.Findings)).
		Bool("cached", cached).
		Func(spotel.LogTraceFields(ctx)).
		Msg("scan_completed")

	return &Result{Report: report, Verdict: v, Cached: cached}, nil
}

// lookup returns a cached report re-issued under a fresh id, so each scan
// keeps its own history entry.
func (s *Service) lookup(ctx context.Context, key string) (*risk.Report, bool) {
	ctx, span := tracer.Start(ctx, "scan.cache_lookup")
	defer span.End()

	report, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("report_cache_read_failed")
		return nil, false
	}
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if !ok {
		return nil, false
	}
	report.ID = uuid.New().String()
	report.CreatedAt = time.Now().UTC()
	return report, true
}

// cacheable skips image reports whose pipeline ended in failure.
func cacheable(r *risk.Report) bool {
	return r.Image == nil || len(r.Image.Errors) == 0
}
