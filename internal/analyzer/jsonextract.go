package analyzer

import "encoding/json"

// ExtractJSONObject returns the first well-formed JSON object embedded in s.
// Models wrap JSON in prose or code fences; every '{' is tried as a start
// until a balanced, valid object is found.
func ExtractJSONObject(s string) ([]byte, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		end := matchBrace(s, start)
		if end < 0 {
			continue
		}
		candidate := []byte(s[start : end+1])
		if json.Valid(candidate) {
			return candidate, true
		}
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
