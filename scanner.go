package streamhost

// balancedObjectEnd returns the index just past the object that opens at
// start (which must point at '{'), tracking {/} nesting depth while ignoring
// braces inside double-quoted strings. A backslash inside a string escapes
// exactly one character. Returns ok=false if the object never closes
// within s.
func balancedObjectEnd(s string, start int) (end int, ok bool) {
	var inString, escape bool
	depth := 0
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escape {
			escape = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i + 1, true
				}
			}
		}
	}
	return 0, false
}
