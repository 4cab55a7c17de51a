package imagescan

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

// DocumentKeywords mark an object label as a document.
var DocumentKeywords = []string{"book", "paper", "document", "card", "license", "passport", "id", "certificate"}

// idCardKeywords raise a document label to an identity document.
var idCardKeywords = map[string]bool{"card": true, "license": true, "id": true, "passport": true, "certificate": true}

// minObjectScore drops low-confidence detector labels.
const minObjectScore = 0.5

// ObjectFindings turns detector labels into document findings. Keywords
// match whole words of the label, so "id card" matches but "bridge" does not.
// Each subtype is reported once, with its best score.
func ObjectFindings(labels []analyzer.Label) []risk.Finding {
	best := make(map[string]risk.Finding)
	var order []string
	for _, l := range labels {
		if l.Score < minObjectScore {
			continue
		}
		subtype, ok := documentSubtype(l.Label)
		if !ok {
			continue
		}
		f := risk.NewFinding(risk.Cat(risk.ClassDocument, subtype), strings.ToLower(l.Label), l.Score, risk.SourceObjectDetector)
		cur, seen := best[subtype]
		if !seen {
			order = append(order, subtype)
		}
		if !seen || f.Confidence > cur.Confidence {
			best[subtype] = f
		}
	}
	out := make([]risk.Finding, 0, len(order))
	for _, s := range order {
		out = append(out, best[s])
	}
	return out
}

// documentSubtype picks the subtype for a label: the first identity keyword
// if any, otherwise the first document keyword.
func documentSubtype(label string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var generic string
	for _, w := range words {
		if idCardKeywords[w] {
			return w, true
		}
		if generic == "" && isDocumentKeyword(w) {
			generic = w
		}
	}
	return generic, generic != ""
}

func isDocumentKeyword(w string) bool {
	for _, k := range DocumentKeywords {
		if k == w {
			return true
		}
	}
	return false
}

// FaceFinding reports detected faces as one finding carrying the count.
func FaceFinding(count int) (risk.Finding, bool) {
	if count <= 0 {
		return risk.Finding{}, false
	}
	text := "1 face"
	if count > 1 {
		text = fmt.Sprintf("%d faces", count)
	}
	return risk.NewFinding(risk.Cat(risk.ClassFaceDetected, ""), text, 1, risk.SourceFaceDetector).WithCount(count), true
}
