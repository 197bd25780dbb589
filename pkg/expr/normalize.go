package expr

import (
	"errors"
	"strings"
)

// normalize rewrites the legacy spellings accepted in flow documents into HCL syntax:
// single-quoted strings become double-quoted, and === / !== become == / !=.
func normalize(src string) (string, error) {
	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"':
			end, err := skipString(src, i, '"')
			if err != nil {
				return "", err
			}
			b.WriteString(src[i : end+1])
			i = end

		case c == '\'':
			end, err := skipString(src, i, '\'')
			if err != nil {
				return "", err
			}
			b.WriteByte('"')
			for j := i + 1; j < end; j++ {
				switch src[j] {
				case '\\':
					// \' needs no escape inside a double-quoted string
					if j+1 < end && src[j+1] == '\'' {
						b.WriteByte('\'')
						j++
						continue
					}
					b.WriteByte('\\')
					if j+1 < end {
						b.WriteByte(src[j+1])
						j++
					}
				case '"':
					b.WriteString(`\"`)
				default:
					b.WriteByte(src[j])
				}
			}
			b.WriteByte('"')
			i = end

		case strings.HasPrefix(src[i:], "==="):
			b.WriteString("==")
			i += 2

		case strings.HasPrefix(src[i:], "!=="):
			b.WriteString("!=")
			i += 2

		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// skipString returns the index of the closing quote of the string starting at start.
func skipString(src string, start int, quote byte) (int, error) {
	for j := start + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j, nil
		}
	}
	return 0, errors.New("unterminated string literal")
}
