package cache

// matchEntry reports whether pattern matches key or any tag.
func matchEntry(pattern, key string, tags []string) bool {
	if Match(pattern, key) {
		return true
	}

	for _, t := range tags {
		if Match(pattern, t) {
			return true
		}
	}

	return false
}

// Match reports whether s matches the glob pattern. '*' matches any run of
// characters (including none) and '?' matches exactly one. Unlike path.Match,
// '*' also crosses '/', which may appear in caller-supplied ids.
func Match(pattern, s string) bool {
	p, i := 0, 0
	star, mark := -1, 0

	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = i
			p++
		case star >= 0:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}

	return p == len(pattern)
}
