// Package content prepares raw user input for analysis: it strips markup and
// invisible characters from post text and decodes uploaded images.
package content

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strict = bluemonday.StrictPolicy()

// htmlElements are the tag names that mark input as markup. Anything else in
// angle brackets, such as "Name <john@example.com>", is text.
var htmlElements = map[string]bool{
	"a": true, "abbr": true, "article": true, "b": true, "blockquote": true, "body": true,
	"br": true, "code": true, "div": true, "em": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "head": true,
	"header": true, "hr": true, "html": true, "i": true, "img": true, "li": true,
	"ol": true, "p": true, "pre": true, "script": true, "section": true, "small": true,
	"span": true, "strong": true, "style": true, "sub": true, "sup": true, "table": true,
	"td": true, "th": true, "tr": true, "u": true, "ul": true,
}

// NormalizeText returns the text analyzers see. Markup is stripped when the
// input contains known HTML elements, the result is NFKC-normalised so full-width digits
// and look-alike letters match the patterns, and format and control
// characters other than common whitespace are removed.
func NormalizeText(s string) string {
	if escaped, isHTML := escapeNonElements(s); isHTML {
		s = html.UnescapeString(strict.Sanitize(escaped))
	}
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if invisible(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeNonElements rewrites every '<' that does not open a known element as
// "&lt;" so the sanitizer keeps it as text. isHTML is false when no known
// element was found.
func escapeNonElements(s string) (out string, isHTML bool) {
	if !strings.ContainsRune(s, '<') {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			b.WriteByte(s[i])
			continue
		}
		if name := tagName(s[i+1:]); htmlElements[name] {
			isHTML = true
			b.WriteByte('<')
			continue
		}
		b.WriteString("&lt;")
	}
	return b.String(), isHTML
}

// tagName returns the lower-cased element name at the start of s, after an
// optional '/', when it is followed by whitespace, '>' or "/>".
func tagName(s string) string {
	s = strings.TrimPrefix(s, "/")
	end := 0
	for end < len(s) && (s[end] >= 'a' && s[end] <= 'z' || s[end] >= 'A' && s[end] <= 'Z' || end > 0 && s[end] >= '0' && s[end] <= '9') {
		end++
	}
	if end == 0 || end == len(s) {
		return ""
	}
	switch s[end] {
	case '>', ' ', '\t', '\n', '\r', '/':
		return strings.ToLower(s[:end])
	}
	return ""
}

// IsBlank reports whether s has no visible content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func invisible(r rune) bool {
	if r == '\n' || r == '\t' || r == '\r' || r == ' ' {
		return false
	}
	return unicode.In(r, unicode.Cf, unicode.Co, unicode.Cc)
}
