package broker

import "strings"

// shellOperators are the boundary tokens split() honours when
// allow_shell_operators is false. Longer operators are matched first so
// "&&" isn't mistaken for two "&" tokens.
var shellOperators = []string{"&&", "||", ";", "|", "<", ">", "&"}

// splitShellOperators splits cmd on shell control operators, honouring
// single and double quotes (operators inside quotes are not boundaries).
// Empty segments are dropped and each remaining segment is trimmed.
func splitShellOperators(cmd string) []string {
	var segments []string
	var cur strings.Builder
	var inSingle, inDouble bool

	runes := []rune(cmd)
	i := 0
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			segments = append(segments, s)
		}
		cur.Reset()
	}

	for i < len(runes) {
		r := runes[i]
		switch {
		case inSingle:
			cur.WriteRune(r)
			if r == '\'' {
				inSingle = false
			}
			i++
			continue
		case inDouble:
			cur.WriteRune(r)
			if r == '"' {
				inDouble = false
			}
			i++
			continue
		case r == '\'':
			inSingle = true
			cur.WriteRune(r)
			i++
			continue
		case r == '"':
			inDouble = true
			cur.WriteRune(r)
			i++
			continue
		}

		matched := false
		for _, op := range shellOperators {
			n := len(op)
			if i+n <= len(runes) && string(runes[i:i+n]) == op {
				flush()
				i += n
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		cur.WriteRune(r)
		i++
	}
	flush()
	return segments
}
