// Package imagescan analyzes an uploaded image: OCR text goes through the
// text analyzers while object and face detection run alongside, and every
// signal is merged into one report.
package imagescan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
	"github.com/Aafreen2203/SafePostAI/internal/content"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/imagescan")

// MinTextLength is the longest OCR result treated as "no readable text".
const MinTextLength = 10

// TextFunc runs the text analyzers and returns their raw finding sets in a
// fixed order, unaggregated.
type TextFunc func(ctx context.Context, text string) [][]risk.Finding

// Pipeline is the image analysis adapter. Collaborators left nil are skipped.
type Pipeline struct {
	ocr        analyzer.OCR
	objects    analyzer.ObjectDetector
	faces      analyzer.FaceDetector
	text       TextFunc
	aggregator *risk.Aggregator
	onState    func(State)
	timeout    time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithOCR(o analyzer.OCR) Option                       { return func(p *Pipeline) { p.ocr = o } }
func WithObjectDetector(d analyzer.ObjectDetector) Option { return func(p *Pipeline) { p.objects = d } }
func WithFaceDetector(d analyzer.FaceDetector) Option     { return func(p *Pipeline) { p.faces = d } }
func WithTextAnalyzer(f TextFunc) Option                  { return func(p *Pipeline) { p.text = f } }
func WithAggregator(a *risk.Aggregator) Option            { return func(p *Pipeline) { p.aggregator = a } }

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) Option { return func(p *Pipeline) { p.timeout = d } }

// WithStateHook observes every state the run enters, in order.
func WithStateHook(fn func(State)) Option { return func(p *Pipeline) { p.onState = fn } }

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{aggregator: risk.NewAggregator()}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// run is the per-call state of one analysis.
type run struct {
	state   State
	onState func(State)
	errs    []string
}

func (r *run) to(s State) {
	if !CanTransition(r.state, s) {
		log.Error().Str("from", string(r.state)).Str("to", string(s)).Msg("illegal image pipeline transition")
		return
	}
	r.state = s
	if r.onState != nil {
		r.onState(s)
	}
}

func (r *run) fail(stage string, err error) {
	r.errs = append(r.errs, fmt.Sprintf("%s: %v", stage, err))
	log.Warn().Err(err).Str("stage", stage).Msg("image analysis step failed")
}

// AnalyzeImage never returns an error. A failed step leaves the run in
// StateFailed and the report holds whatever was collected.
func (p *Pipeline) AnalyzeImage(ctx context.Context, img []byte) *risk.Report {
	ctx, span := tracer.Start(ctx, "imagescan.analyze")
	defer span.End()

	r := &run{state: StateIdle, onState: p.onState}
	signals := &risk.ImageSignals{}

	var (
		wg         sync.WaitGroup
		labels     []analyzer.Label
		objectsErr error
		faceCount  int
		facesErr   error
	)
	// Object and face detection depend only on the image.
	if p.objects != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := p.bound(ctx)
			defer cancel()
			labels, objectsErr = p.objects.DetectObjects(cctx, img)
		}()
	}
	if p.faces != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := p.bound(ctx)
			defer cancel()
			faceCount, facesErr = p.faces.DetectFaces(cctx, img)
		}()
	}

	r.to(StateExtracting)
	var text string
	if p.ocr != nil {
		cctx, cancel := p.bound(ctx)
		raw, conf, err := p.ocr.ExtractText(cctx, img)
		cancel()
		if err != nil {
			r.fail("ocr", fmt.Errorf("%w: %w", analyzer.ErrOCRFailure, err))
		} else {
			text = strings.TrimSpace(content.NormalizeText(raw))
			signals.OCRConfidence = conf
		}
	}

	var sets [][]risk.Finding
	if utf8.RuneCountInString(text) <= MinTextLength || p.text == nil {
		signals.TextSkipped = true
	} else {
		r.to(StateTextAnalysis)
		sets = append(sets, p.text(ctx, text)...)
	}

	r.to(StateObjectAndFaceAnalysis)
	wg.Wait()

	if objectsErr != nil && !errors.Is(objectsErr, analyzer.ErrAnalyzerUnavailable) {
		r.fail("objects", objectsErr)
	}
	if facesErr != nil && !errors.Is(facesErr, analyzer.ErrAnalyzerUnavailable) {
		r.fail("faces", facesErr)
	}
	if objectsErr == nil {
		signals.Objects = lo.Uniq(lo.Map(labels, func(l analyzer.Label, _ int) string {
			return strings.ToLower(l.Label)
		}))
		sets = append(sets, ObjectFindings(labels))
	}
	if facesErr == nil {
		signals.Faces = faceCount
		if f, ok := FaceFinding(faceCount); ok {
			sets = append(sets, []risk.Finding{f})
		}
	}
	if err := ctx.Err(); err != nil {
		r.fail("context", err)
	}

	report := p.aggregator.Aggregate(ctx, text, sets...)
	r.to(StateAggregated)
	if len(r.errs) > 0 {
		r.to(StateFailed)
	} else {
		r.to(StateDone)
	}

	signals.State = string(r.state)
	signals.Errors = r.errs
	report.Image = signals

	span.SetAttributes(
		attribute.String("imagescan.state", signals.State),
		attribute.Bool("imagescan.text_skipped", signals.TextSkipped),
		attribute.Int("imagescan.faces", signals.Faces),
		attribute.String("risk.overall_severity", report.OverallSeverity.String()),
	)
	return report
}
