package normalize

import fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

// Scorer rates how alike two strings are on a 0-100 scale. The vendor
// canonicalizer and the duplicate matcher both take a Scorer so the metric
// can be swapped without touching either component.
type Scorer func(a, b string) int

// TokenSetScorer is the default Scorer: a token-set ratio that ignores case,
// punctuation, word order, and repeated tokens, so "ACME Corp" and
// "Acme  Corp." score 100.
func TokenSetScorer(a, b string) int {
	// The published go-fuzzywuzzy defaults asciiOnly/cleanse to false; pass
	// them explicitly to keep the Python token_set_ratio defaults this scorer
	// documents.
	return fuzzy.TokenSetRatio(a, b, true, true)
}
