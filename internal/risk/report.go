package risk

import (
	"time"

	"github.com/google/uuid"
)

// ImageSignals carries what the image pipeline observed besides findings.
type ImageSignals struct {
	State         string   `json:"state"`
	OCRConfidence float64  `json:"ocrConfidence"`
	TextSkipped   bool     `json:"textSkipped"`
	Faces         int      `json:"faces"`
	Objects       []string `json:"objects,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// Report is the aggregate result of one analysis call. It is not modified
// after it is returned.
type Report struct {
	ID              string        `json:"id"`
	Findings        []Finding     `json:"findings"`
	OverallSeverity Severity      `json:"overallSeverity"`
	Summary         string        `json:"summary"`
	SourceText      string        `json:"sourceText"`
	Suppressed      int           `json:"suppressed,omitempty"`
	Image           *ImageSignals `json:"image,omitempty"`
	Sentiment       *Sentiment    `json:"sentiment,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Sentiment is the overall tone of a post. It is informational and never
// changes the severity.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// EmptyReport returns a report with no findings and severity none.
func EmptyReport(sourceText string) *Report {
	return &Report{
		ID:              uuid.New().String(),
		Findings:        []Finding{},
		OverallSeverity: SeverityNone,
		Summary:         summaryNone,
		SourceText:      sourceText,
		CreatedAt:       time.Now().UTC(),
	}
}

// Categories returns the distinct categories in the report, in finding order.
func (r *Report) Categories() []string {
	seen := make(map[string]bool, len(r.Findings))
	var out []string
	for _, f := range r.Findings {
		k := f.Category.String()
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// HasClass reports whether any finding belongs to one of the classes.
func (r *Report) HasClass(classes ...Class) bool {
	for _, f := range r.Findings {
		for _, c := range classes {
			if f.Category.Class == c {
				return true
			}
		}
	}
	return false
}
