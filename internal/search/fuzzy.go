package search

import "sort"

// Fuzzy match modes, recorded as match detail for explainability.
const (
	FuzzyExactish = "exact-ish" // Distance 0 after normalization (case/punctuation)
	FuzzyTypo     = "typo"      // Distance 1
	FuzzyLoose    = "loose"     // Distance 2 and up (within the configured cap)
)

// editDistance computes the Levenshtein distance between two strings using
// the two-row method. Both inputs are expected to be lowercased already.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// fuzzyMode classifies an edit distance into a match mode, or "" when the
// distance exceeds maxDistance.
func fuzzyMode(distance, maxDistance int) string {
	switch {
	case distance == 0:
		return FuzzyExactish
	case distance == 1:
		return FuzzyTypo
	case distance <= maxDistance:
		return FuzzyLoose
	default:
		return ""
	}
}

// likelyTypo reports whether the query tokens look misspelled: fewer than
// half of them appear in the known dictionary, and at least one token sits
// within editing range of a dictionary word.
func likelyTypo(tokens []string, maxDistance int) bool {
	if len(tokens) == 0 {
		return false
	}
	dict := dictionary()
	known := 0
	near := false
	for _, tok := range tokens {
		exact := false
		for _, word := range dict {
			if tok == word {
				exact = true
				break
			}
			if !near && editDistance(tok, word) <= maxDistance {
				near = true
			}
		}
		if exact {
			known++
		}
	}
	return known*2 < len(tokens) && near
}

// closestTerms returns up to limit dictionary words ordered by edit distance
// to the query, for "did you mean" suggestions.
func closestTerms(query string, limit int) []string {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	type candidate struct {
		word string
		dist int
	}
	var candidates []candidate
	for _, word := range dictionary() {
		best := -1
		for _, tok := range tokens {
			d := editDistance(tok, word)
			if best < 0 || d < best {
				best = d
			}
		}
		// Distance above half the word length is noise, not a suggestion.
		if best >= 0 && best*2 <= len(word) {
			candidates = append(candidates, candidate{word, best})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].word < candidates[j].word
	})
	var out []string
	for _, c := range candidates {
		out = append(out, c.word)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func minInt(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
