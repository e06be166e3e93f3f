package pulse

import (
	"strings"

	"github.com/moltpulse/moltpulse/internal/hash/sha256"
)

// ItemID derives a stable identifier from the source name and canonical URL
// or symbol. The same logical item hashes to the same ID across runs, which
// keeps cross-run deduplication and citations stable.
func ItemID(sourceName, urlOrSymbol string) string {
	return sha256.Short([]byte(sourceName + "|" + urlOrSymbol))
}

// Fingerprint is the fallback dedup key for items lacking a stable
// identifier: lower-cased, whitespace-collapsed title plus source name.
func (i Item) Fingerprint() string {
	return sha256.Short([]byte(NormalizeText(i.Title) + "|" + NormalizeText(i.SourceName)))
}

// DedupKey returns the identifier when present, the content fingerprint
// otherwise.
func (i Item) DedupKey() string {
	if i.ID != "" {
		return i.ID
	}
	return i.Fingerprint()
}

// NormalizeText lower-cases and collapses all runs of whitespace to single
// spaces for comparison purposes.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
