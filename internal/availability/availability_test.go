package availability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltpulse/moltpulse/internal/pulse"
)

type fakeCollector struct {
	name        string
	itemType    string
	credentials []string
	anyOf       bool
}

func (f *fakeCollector) Name() string                  { return f.name }
func (f *fakeCollector) Type() string                  { return f.itemType }
func (f *fakeCollector) RequiredCredentials() []string { return f.credentials }
func (f *fakeCollector) RequiresAny() bool             { return f.anyOf }
func (f *fakeCollector) Collect(context.Context, pulse.CollectRequest) pulse.CollectorResult {
	return pulse.CollectorResult{}
}

func envOf(keys ...string) LookupFunc {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(name string) (string, bool) {
		_, ok := set[name]
		return "value", ok
	}
}

func TestProbe_Keyless(t *testing.T) {
	t.Parallel()

	statuses := Probe([]pulse.Collector{
		&fakeCollector{name: "RSS Feed", itemType: "news"},
	}, envOf())

	require.Len(t, statuses, 1)
	require.True(t, statuses[0].Available)
	require.Empty(t, statuses[0].MissingKeys)
	require.Empty(t, statuses[0].KeyInUse)
}

func TestProbe_RequiresAny(t *testing.T) {
	t.Parallel()

	news := &fakeCollector{
		name:        "News",
		itemType:    "news",
		credentials: []string{"NEWSDATA_API_KEY", "NEWSAPI_API_KEY"},
		anyOf:       true,
	}

	// First declared key wins when both are present.
	statuses := Probe([]pulse.Collector{news}, envOf("NEWSDATA_API_KEY", "NEWSAPI_API_KEY"))
	require.True(t, statuses[0].Available)
	require.Equal(t, "NEWSDATA_API_KEY", statuses[0].KeyInUse)

	// The fallback key alone is enough.
	statuses = Probe([]pulse.Collector{news}, envOf("NEWSAPI_API_KEY"))
	require.True(t, statuses[0].Available)
	require.Equal(t, "NEWSAPI_API_KEY", statuses[0].KeyInUse)

	// Neither key: unavailable, all alternatives reported missing.
	statuses = Probe([]pulse.Collector{news}, envOf())
	require.False(t, statuses[0].Available)
	require.Equal(t, []string{"NEWSDATA_API_KEY", "NEWSAPI_API_KEY"}, statuses[0].MissingKeys)
}

func TestProbe_RequiresAll(t *testing.T) {
	t.Parallel()

	c := &fakeCollector{
		name:        "Paired",
		itemType:    "social",
		credentials: []string{"KEY_A", "KEY_B"},
	}

	statuses := Probe([]pulse.Collector{c}, envOf("KEY_A"))
	require.False(t, statuses[0].Available)
	require.Equal(t, []string{"KEY_B"}, statuses[0].MissingKeys)

	statuses = Probe([]pulse.Collector{c}, envOf("KEY_A", "KEY_B"))
	require.True(t, statuses[0].Available)
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	statuses := []Status{
		{Collector: "a", Available: true},
		{Collector: "b", Available: false},
		{Collector: "c", Available: true},
	}
	require.Equal(t, []string{"a", "c"}, Available(statuses))
}
