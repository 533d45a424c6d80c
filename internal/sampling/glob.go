package sampling

// GlobMatch reports whether subject matches pattern, where '*' matches any
// run of characters (including none) and '?' matches exactly one.
//
// Matching is greedy: on a mismatch after a '*', the star is extended by one
// character and matching resumes from the remembered position.
func GlobMatch(pattern, subject string) bool {
	p := []rune(pattern)
	s := []rune(subject)

	px, sx := 0, 0
	starPx, starSx := -1, -1

	for px < len(p) || sx < len(s) {
		if px < len(p) {
			switch c := p[px]; c {
			case '*':
				starPx = px
				starSx = sx + 1
				px++
				continue
			case '?':
				if sx < len(s) {
					px++
					sx++
					continue
				}
			default:
				if sx < len(s) && s[sx] == c {
					px++
					sx++
					continue
				}
			}
		}

		if starSx > 0 && starSx <= len(s) {
			px = starPx
			sx = starSx
			continue
		}
		return false
	}

	return true
}
