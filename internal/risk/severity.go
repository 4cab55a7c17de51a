// Package risk holds the shared risk model: the ordinal severity scale, the
// category table every detector consults, findings, reports, and the
// aggregator that merges findings from all analyzers into one report.
package risk

import (
	"fmt"
	"strings"
)

// Severity is an ordinal risk level. The zero value is SeverityNone.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical"}

// providerVocabulary maps the words remote models use for risk onto the scale.
var providerVocabulary = map[string]Severity{
	"none":          SeverityNone,
	"safe":          SeverityNone,
	"clean":         SeverityNone,
	"no risk":       SeverityNone,
	"low":           SeverityLow,
	"minor":         SeverityLow,
	"info":          SeverityLow,
	"informational": SeverityLow,
	"medium":        SeverityMedium,
	"med":           SeverityMedium,
	"moderate":      SeverityMedium,
	"warning":       SeverityMedium,
	"high":          SeverityHigh,
	"major":         SeverityHigh,
	"serious":       SeverityHigh,
	"severe":        SeverityHigh,
	"critical":      SeverityCritical,
	"very high":     SeverityCritical,
	"extreme":       SeverityCritical,
	"blocker":       SeverityCritical,
}

// String returns the lowercase name of the level.
func (s Severity) String() string {
	if s < SeverityNone || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// AtLeast reports whether s ranks at or above o.
func (s Severity) AtLeast(o Severity) bool { return s >= o }

// MaxSeverity returns the higher of two levels.
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// ParseSeverity maps a canonical level name or a provider's risk wording onto
// the scale. Matching is case-insensitive and ignores surrounding whitespace.
func ParseSeverity(s string) (Severity, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", " ")
	sev, ok := providerVocabulary[key]
	return sev, ok
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	sev, ok := ParseSeverity(string(b))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(b))
	}
	*s = sev
	return nil
}
