package ingestion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// pythonLiteralToJSON rewrites a Python mapping literal, as produced by str()
// on a dict, into JSON: single-quoted strings become double-quoted, True, False
// and None become true, false and null, and digit separators are dropped.
func pythonLiteralToJSON(s string) ([]byte, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			text, next, err := unquotePython(s, i)
			if err != nil {
				return nil, err
			}
			enc, _ := json.Marshal(text)
			b.Write(enc)
			i = next
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := i
			for j < len(s) && (isDigit(s[j]) || strings.IndexByte("._eE", s[j]) >= 0 ||
				((s[j] == '+' || s[j] == '-') && (s[j-1] == 'e' || s[j-1] == 'E'))) {
				if s[j] != '_' {
					b.WriteByte(s[j])
				}
				j++
			}
			i = j
		case isLetter(c):
			j := i
			for j < len(s) && (isLetter(s[j]) || isDigit(s[j])) {
				j++
			}
			switch word := s[i:j]; word {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				return nil, fmt.Errorf("unsupported literal %q", word)
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return []byte(b.String()), nil
}

// unquotePython reads the quoted string starting at s[start] and returns its
// text and the index just past the closing quote.
func unquotePython(s string, start int) (string, int, error) {
	quote := s[start]
	var b strings.Builder
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(e)
			case 'u':
				if i+4 >= len(s) {
					return "", 0, fmt.Errorf("truncated \\u escape at offset %d", i)
				}
				r, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
				if err != nil {
					return "", 0, fmt.Errorf("bad \\u escape at offset %d", i)
				}
				b.WriteRune(rune(r))
				i += 4
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string at offset %d", start)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
