package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aafreen2203/SafePostAI/internal/scan"
)

// verdictMark is the glyph printed before a verdict.
func verdictMark(action string) string {
	switch action {
	case "block":
		return "✗"
	case "warn":
		return "⚠"
	default:
		return "✓"
	}
}

// maskValue shows the first and last character of a matched value. Full
// values never reach the terminal unless --reveal is set.
func maskValue(v string, reveal bool) string {
	if reveal {
		return v
	}
	r := []rune(v)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
}

func writeResult(w io.Writer, res *scan.Result, reveal bool) {
	r := res.Report
	fmt.Fprintf(w, "%s %s (severity %s, score %d/%s)\n",
		verdictMark(res.Verdict.Action), strings.ToUpper(res.Verdict.Action),
		r.OverallSeverity, res.Verdict.Score, res.Verdict.ScoreLevel)
	fmt.Fprintf(w, "  %s\n", r.Summary)
	for _, reason := range res.Verdict.Reasons {
		fmt.Fprintf(w, "  - %s\n", reason)
	}
	if len(r.Findings) > 0 {
		fmt.Fprintln(w, "  Findings:")
		for _, f := range r.Findings {
			fmt.Fprintf(w, "    [%-8s] %-24s %-18s %.2f  %s\n",
				f.Severity, f.Category, f.Source, f.Confidence, maskValue(f.MatchedText, reveal))
		}
	}
	if img := r.Image; img != nil {
		fmt.Fprintf(w, "  Image: state=%s faces=%d ocr_confidence=%.2f", img.State, img.Faces, img.OCRConfidence)
		if len(img.Objects) > 0 {
			fmt.Fprintf(w, " objects=%s", strings.Join(img.Objects, ","))
		}
		fmt.Fprintln(w)
		for _, e := range img.Errors {
			fmt.Fprintf(w, "  ! %s\n", e)
		}
	}
	if r.Suppressed > 0 {
		fmt.Fprintf(w, "  (%d below severity floor)\n", r.Suppressed)
	}
	if r.Sentiment != nil {
		fmt.Fprintf(w, "  Sentiment: %s (%.2f)\n", r.Sentiment.Label, r.Sentiment.Score)
	}
	if res.Cached {
		fmt.Fprintln(w, "  (cached)")
	}
	fmt.Fprintf(w, "  id: %s\n", r.ID)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
