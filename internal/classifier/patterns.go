package classifier

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Aafreen2203/SafePostAI/internal/risk"
	"github.com/Aafreen2203/SafePostAI/patterns"
)

// Detector is a compiled, named recognizer.
type Detector struct {
	Name      string
	Category  risk.Category
	Patterns  []*regexp.Regexp
	TrimWords map[string]bool
	MinWords  int
}

type span struct {
	start, end int
}

// find returns the non-overlapping matches of all the detector's patterns,
// ordered by offset. Where two patterns overlap the earlier, longer match wins.
func (d *Detector) find(text string) []span {
	var spans []span
	for _, re := range d.Patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if sp, ok := d.trim(text, span{loc[0], loc[1]}); ok {
				spans = append(spans, sp)
			}
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end-spans[i].start > spans[j].end-spans[j].start
	})

	out := spans[:0]
	lastEnd := -1
	for _, sp := range spans {
		if sp.start < lastEnd {
			continue
		}
		out = append(out, sp)
		lastEnd = sp.end
	}
	return out
}

func (d *Detector) trim(text string, m span) (span, bool) {
	if len(d.TrimWords) == 0 && d.MinWords == 0 {
		return m, true
	}
	words := wordSpans(text, m)
	for len(words) > 0 && d.TrimWords[lowerASCII(text[words[0].start:words[0].end])] {
		words = words[1:]
	}
	for len(words) > 0 && d.TrimWords[lowerASCII(text[words[len(words)-1].start:words[len(words)-1].end])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 || len(words) < d.MinWords {
		return span{}, false
	}
	return span{words[0].start, words[len(words)-1].end}, true
}

func wordSpans(text string, m span) []span {
	var words []span
	start := -1
	for i := m.start; i < m.end; i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			if start >= 0 {
				words = append(words, span{start, i})
				start = -1
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, span{start, m.end})
	}
	return words
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// DefaultRecognizers returns the built-in recognizers parsed from the
// embedded pii.yaml. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}
