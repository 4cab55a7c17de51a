package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/risk")

const (
	summaryNone          = "No sensitive content detected"
	maxSummaryCategories = 3
)

// Aggregator merges findings from several analyzers into one report.
// An Aggregator holds no per-call state and is safe for concurrent use.
type Aggregator struct {
	floor   Severity
	enabled map[Class]bool
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithSeverityFloor hides findings below floor from the report. Hidden
// findings still count toward the overall severity.
func WithSeverityFloor(floor Severity) AggregatorOption {
	return func(a *Aggregator) { a.floor = floor }
}

// WithEnabledClasses drops findings whose class is not listed. An empty list
// enables every class.
func WithEnabledClasses(classes []Class) AggregatorOption {
	return func(a *Aggregator) {
		if len(classes) == 0 {
			a.enabled = nil
			return
		}
		a.enabled = make(map[Class]bool, len(classes))
		for _, c := range classes {
			a.enabled[c] = true
		}
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{}
	for _, o := range opts {
		o(a)
	}
	return a
}

type member struct {
	text     string
	category Category
}

// group is a set of findings describing the same underlying value.
type group struct {
	best      Finding
	members   []member
	strongest Severity
}

func (g *group) matches(f Finding, text string) bool {
	for _, m := range g.members {
		if !Compatible(m.category, f.Category) {
			continue
		}
		if m.text == "" || text == "" {
			if m.text == text {
				return true
			}
			continue
		}
		if strings.Contains(m.text, text) || strings.Contains(text, m.text) {
			return true
		}
	}
	return false
}

func (g *group) add(f Finding, text string) {
	g.members = append(g.members, member{text: text, category: f.Category})
	g.strongest = MaxSeverity(g.strongest, f.Severity)
	if outranks(f, g.best) {
		if f.Position == nil {
			f.Position = g.best.Position
		}
		g.best = f
	}
}

// outranks reports whether f should replace cur as a group's retained finding:
// higher confidence wins, and on a tie a non-pattern source beats the pattern
// library.
func outranks(f, cur Finding) bool {
	if f.Confidence != cur.Confidence {
		return f.Confidence > cur.Confidence
	}
	return cur.Source == SourcePatternLibrary && f.Source != SourcePatternLibrary
}

// Aggregate flattens the finding sets in order, merges duplicates, and builds
// the report. Callers pass sets in a fixed per-source order so the result does
// not depend on which analyzer finished first.
func (a *Aggregator) Aggregate(ctx context.Context, sourceText string, sets ...[]Finding) *Report {
	_, span := tracer.Start(ctx, "risk.aggregate")
	defer span.End()

	report := EmptyReport(sourceText)
	var groups []*group
	total := 0
	for _, set := range sets {
		for _, f := range set {
			if a.enabled != nil && !a.enabled[f.Category.Class] {
				continue
			}
			total++
			text := normalizeMatch(f.MatchedText)
			if g := findGroup(groups, f, text); g != nil {
				g.add(f, text)
				continue
			}
			groups = append(groups, &group{
				best:      f,
				members:   []member{{text: text, category: f.Category}},
				strongest: f.Severity,
			})
		}
	}

	findings := make([]Finding, 0, len(groups))
	for _, g := range groups {
		report.OverallSeverity = MaxSeverity(report.OverallSeverity, g.strongest)
		// A group is hidden only when every member is below the floor.
		if g.strongest < a.floor {
			report.Suppressed++
			continue
		}
		findings = append(findings, g.best)
	}
	report.Findings = findings
	report.Summary = summarize(findings, report.OverallSeverity, report.Suppressed)

	span.SetAttributes(
		attribute.Int("risk.findings_in", total),
		attribute.Int("risk.findings_out", len(findings)),
		attribute.Int("risk.suppressed", report.Suppressed),
		attribute.String("risk.overall_severity", report.OverallSeverity.String()),
	)
	return report
}

func findGroup(groups []*group, f Finding, text string) *group {
	for _, g := range groups {
		if g.matches(f, text) {
			return g
		}
	}
	return nil
}

// normalizeMatch lower-cases, trims, and collapses internal whitespace.
func normalizeMatch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func summarize(findings []Finding, overall Severity, suppressed int) string {
	if len(findings) == 0 {
		if suppressed == 0 {
			return summaryNone
		}
		return fmt.Sprintf("%d low-priority %s hidden; overall risk %s",
			suppressed, plural(suppressed, "item", "items"), strings.ToUpper(overall.String()))
	}

	ordered := make([]Finding, len(findings))
	copy(ordered, findings)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Severity > ordered[j].Severity })
	labels := lo.Uniq(lo.Map(ordered, func(f Finding, _ int) string { return f.Category.String() }))

	top := labels
	if len(top) > maxSummaryCategories {
		top = top[:maxSummaryCategories]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d sensitive %s found: %s", len(findings), plural(len(findings), "item", "items"), strings.Join(top, ", "))
	if extra := len(labels) - len(top); extra > 0 {
		fmt.Fprintf(&b, " (+%d more)", extra)
	}
	fmt.Fprintf(&b, "; overall risk %s", strings.ToUpper(overall.String()))
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
