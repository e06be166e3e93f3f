package pulse_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltpulse/moltpulse/internal/pulse"
)

func TestItemIDStable(t *testing.T) {
	t.Parallel()

	a := pulse.ItemID("Fintech Weekly", "https://a.example/1")
	b := pulse.ItemID("Fintech Weekly", "https://a.example/1")
	require.Equal(t, a, b)
	require.Len(t, a, 16)
	require.NotEqual(t, a, pulse.ItemID("Fintech Weekly", "https://a.example/2"))
}

func TestDedupKeyFallsBackToFingerprint(t *testing.T) {
	t.Parallel()

	withID := pulse.Item{ID: "abc", Title: "Some Title", SourceName: "src"}
	require.Equal(t, "abc", withID.DedupKey())

	noID := pulse.Item{Title: "  Rates   UP  today ", SourceName: "Src"}
	same := pulse.Item{Title: "rates up today", SourceName: "src"}
	require.Equal(t, noID.DedupKey(), same.DedupKey())
}

func TestKeywordRelevance(t *testing.T) {
	t.Parallel()

	kws := []string{"fintech", "payments", "fraud"}
	require.InDelta(t, 0.5, pulse.KeywordRelevance("nothing matches here", kws), 1e-9)
	require.InDelta(t, 0.6, pulse.KeywordRelevance("Fintech roundup", kws), 1e-9)
	require.InDelta(t, 0.7, pulse.KeywordRelevance("fintech payments digest", kws), 1e-9)

	many := []string{"a", "b", "c", "d", "e", "f"}
	require.InDelta(t, 1.0, pulse.KeywordRelevance("abcdef", many), 1e-9)
}

func TestResultHelpersNormalizeNils(t *testing.T) {
	t.Parallel()

	ok := pulse.ResultOf(nil, nil)
	require.NotNil(t, ok.Items)
	require.NotNil(t, ok.Sources)
	require.True(t, ok.OK())

	failed := pulse.FailedResult(errors.New("boom"), nil, nil)
	require.NotNil(t, failed.Items)
	require.False(t, failed.OK())

	failed.Merge(pulse.ResultOf([]pulse.Item{{ID: "x"}}, nil))
	require.Len(t, failed.Items, 1)
}
