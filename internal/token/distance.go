package token

// LevenshteinRatio returns 1 - distance/max(len(a), len(b)) over runes.
// Equal strings score exactly 1.0; an empty operand scores 0.0.
func LevenshteinRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	dist := prev[lb]
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	r := 1.0 - float64(dist)/float64(maxLen)
	if r < 0 {
		return 0
	}
	return r
}

// StrongTokenOverlap reports whether the company and domain token sets share
// a token, or one set is contained in the other. Empty sets never overlap.
func StrongTokenOverlap(company, domain string) bool {
	nt := toSet(NameTokens(company))
	dt := toSet(DomainTokens(domain))
	if len(nt) == 0 || len(dt) == 0 {
		return false
	}
	for t := range nt {
		if _, ok := dt[t]; ok {
			return true
		}
	}
	return subset(nt, dt) || subset(dt, nt)
}

func toSet(toks []string) map[string]struct{} {
	s := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		s[t] = struct{}{}
	}
	return s
}

func subset(a, b map[string]struct{}) bool {
	for t := range a {
		if _, ok := b[t]; !ok {
			return false
		}
	}
	return true
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
