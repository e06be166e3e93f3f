package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_PerSourceBuckets(t *testing.T) {
	t.Parallel()

	l := New(1, 1, nil)

	// Draining one source's bucket leaves the others untouched.
	require.True(t, l.Allow("newsdata"))
	require.False(t, l.Allow("newsdata"))
	require.True(t, l.Allow("alphavantage"))
}

func TestLimiter_Overrides(t *testing.T) {
	t.Parallel()

	l := New(1, 1, map[string]SourceLimit{
		"yahoo": {RequestsPerSecond: 100, Burst: 5},
	})

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("yahoo"))
	}
	require.False(t, l.Allow("yahoo"))
}

func TestLimiter_DisabledWhenRateNonPositive(t *testing.T) {
	t.Parallel()

	l := New(0, 1, nil)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("anything"))
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(0.001, 1, nil)
	require.NoError(t, l.Wait(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "slow")
	require.Error(t, err)
}
