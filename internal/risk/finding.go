package risk

// Source identifies the analyzer that produced a finding.
type Source string

const (
	SourcePatternLibrary     Source = "patternLibrary"
	SourceDocumentClassifier Source = "documentClassifier"
	SourceRemoteEntity       Source = "remoteEntity"
	SourceRemoteToxicity     Source = "remoteToxicity"
	SourceRemotePolicy       Source = "remotePolicy"
	SourceLanguageModel      Source = "languageModel"
	SourceObjectDetector     Source = "objectDetector"
	SourceFaceDetector       Source = "faceDetector"
)

// Position is a byte range into the analyzed text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Finding is one detected sensitive item.
type Finding struct {
	Category    Category  `json:"category"`
	MatchedText string    `json:"matchedText"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Source      Source    `json:"source"`
	Position    *Position `json:"position,omitempty"`
	Count       int       `json:"count,omitempty"`
}

// NewFinding builds a finding whose severity comes from the category table.
// Confidence is clamped to [0,1].
func NewFinding(c Category, matched string, confidence float64, src Source) Finding {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Finding{
		Category:    c,
		MatchedText: matched,
		Severity:    SeverityFor(c, confidence),
		Confidence:  confidence,
		Source:      src,
	}
}

// NewRatedFinding is NewFinding for sources that rate each item themselves;
// see AssessedSeverity.
func NewRatedFinding(c Category, matched string, confidence float64, src Source, rating Severity) Finding {
	f := NewFinding(c, matched, confidence, src)
	f.Severity = AssessedSeverity(c, f.Confidence, rating)
	return f
}

// At returns a copy of f positioned at [start,end).
func (f Finding) At(start, end int) Finding {
	f.Position = &Position{Start: start, End: end}
	return f
}

// WithCount returns a copy of f carrying an occurrence count.
func (f Finding) WithCount(n int) Finding {
	f.Count = n
	return f
}

// MaxOf returns the highest severity among findings, or none.
func MaxOf(findings []Finding) Severity {
	sev := SeverityNone
	for _, f := range findings {
		sev = MaxSeverity(sev, f.Severity)
	}
	return sev
}
