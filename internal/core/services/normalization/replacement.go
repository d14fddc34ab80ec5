package normalization

import "strings"

// translateReplacement rewrites a re.sub style replacement template
// (\1, \g<1>, \g<name>, \\) into the regexp2 dialect ($1, ${name}, $$).
// A literal '$' stays literal.
func translateReplacement(repl string) string {
	if !strings.ContainsAny(repl, `\$`) {
		return repl
	}

	var b strings.Builder
	b.Grow(len(repl) + 4)

	for i := 0; i < len(repl); i++ {
		c := repl[i]
		switch {
		case c == '$':
			b.WriteString("$$")
		case c == '\\' && i+1 < len(repl):
			next := repl[i+1]
			switch {
			case isASCIIDigit(next):
				j := i + 1
				for j < len(repl) && j < i+3 && isASCIIDigit(repl[j]) {
					j++
				}
				b.WriteString("${" + repl[i+1:j] + "}")
				i = j - 1
			case next == 'g' && i+2 < len(repl) && repl[i+2] == '<':
				end := strings.IndexByte(repl[i+3:], '>')
				if end < 0 {
					b.WriteString(repl[i:])
					return b.String()
				}
				b.WriteString("${" + repl[i+3:i+3+end] + "}")
				i = i + 3 + end
			case next == '\\':
				b.WriteByte('\\')
				i++
			case next == 'n':
				b.WriteByte('\n')
				i++
			case next == 't':
				b.WriteByte('\t')
				i++
			case next == 'r':
				b.WriteByte('\r')
				i++
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
				i++
			}
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
