package pulse

import "strings"

// Relevance estimate constants shared by keyword-driven collectors.
const (
	relevanceBase = 0.5
	relevanceStep = 0.1
)

// KeywordRelevance estimates match strength of text against the profile's
// search keywords: a neutral base plus a step per matched keyword, capped at
// 1. Matching is case-insensitive substring containment.
func KeywordRelevance(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	rel := relevanceBase
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			rel += relevanceStep
		}
	}
	if rel > 1 {
		return 1
	}
	return rel
}
