package keyspace

// MatchGlob reports whether name matches a Redis-style glob pattern
// supporting '*', '?', and '[...]' character classes (including '^'
// negation and 'a-z' ranges), via straightforward backtracking — patterns
// from KEYS are short and this runs rarely enough that it doesn't need to
// be fancier.
func MatchGlob(pattern, name string) bool {
	return matchGlob(pattern, name)
}

func matchGlob(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive '*' and try every split point.
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchGlob(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			name = name[1:]
			pattern = pattern[1:]
		case '[':
			if len(name) == 0 {
				return false
			}
			end := indexUnescaped(pattern[1:], ']')
			if end < 0 {
				// No closing bracket: treat '[' as a literal.
				if name[0] != '[' {
					return false
				}
				name = name[1:]
				pattern = pattern[1:]
				continue
			}
			class := pattern[1 : 1+end]
			if !matchClass(class, name[0]) {
				return false
			}
			name = name[1:]
			pattern = pattern[2+end:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			name = name[1:]
			pattern = pattern[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			name = name[1:]
			pattern = pattern[1:]
		}
	}
	return len(name) == 0
}

func indexUnescaped(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func matchClass(class string, c byte) bool {
	negate := false
	if len(class) > 0 && class[0] == '^' {
		negate = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				matched = true
			}
			i += 2
		} else if class[i] == c {
			matched = true
		}
	}
	if negate {
		return !matched
	}
	return matched
}
